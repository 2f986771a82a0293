package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"psorcast/internal/study"
)

func newClinicalCommand(ctx *commandContext) *cobra.Command {
	clinicalCmd := &cobra.Command{
		Use:   "clinical",
		Short: "Record or show the onboarding diagnosis and symptoms",
	}
	clinicalCmd.AddCommand(newClinicalSetCommand(ctx))
	clinicalCmd.AddCommand(newClinicalShowCommand(ctx))
	return clinicalCmd
}

func newClinicalSetCommand(ctx *commandContext) *cobra.Command {
	var diagnosis, symptoms string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set diagnosis and/or symptoms",
		Long: "Diagnosis values: " + strings.Join(study.KnownDiagnoses(), " | ") +
			"\nSymptom values: " + strings.Join(study.KnownSymptoms(), " | "),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("diagnosis") && !cmd.Flags().Changed("symptoms") {
				return fmt.Errorf("pass --diagnosis and/or --symptoms")
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("diagnosis") {
				if err := store.SetDiagnosis(cmd.Context(), diagnosis); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("symptoms") {
				if err := store.SetSymptoms(cmd.Context(), symptoms); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Clinical answers saved")
			return nil
		},
	}
	cmd.Flags().StringVar(&diagnosis, "diagnosis", "", "Diagnosis answer")
	cmd.Flags().StringVar(&symptoms, "symptoms", "", "Symptoms answer")
	return cmd
}

func newClinicalShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show recorded answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			diagnosis, hasDiagnosis, err := store.Diagnosis(cmd.Context())
			if err != nil {
				return err
			}
			symptoms, hasSymptoms, err := store.Symptoms(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				payload := map[string]*string{"diagnosis": nil, "symptoms": nil}
				if hasDiagnosis {
					payload["diagnosis"] = &diagnosis
				}
				if hasSymptoms {
					payload["symptoms"] = &symptoms
				}
				return writeJSON(cmd, payload)
			}
			if !hasDiagnosis {
				diagnosis = "(not answered)"
			}
			if !hasSymptoms {
				symptoms = "(not answered)"
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderPairs([][2]string{
				{"Diagnosis", diagnosis},
				{"Symptoms", symptoms},
			}))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}
