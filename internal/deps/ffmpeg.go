package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// RequiredEncoder is the ffmpeg encoder the timeline renderer asks for.
const RequiredEncoder = "libx264"

var commandContext = exec.CommandContext

// CheckFFmpegEncoder reports whether binary lists RequiredEncoder among its
// encoders.
func CheckFFmpegEncoder(ctx context.Context, binary string) Status {
	binary = strings.TrimSpace(binary)
	result := Status{
		Name:        "FFmpeg " + RequiredEncoder,
		Command:     binary,
		Description: "H.264 encoder used for timeline videos",
	}
	if binary == "" {
		result.Detail = "command not configured"
		return result
	}

	var stdout bytes.Buffer
	cmd := commandContext(ctx, binary, "-hide_banner", "-encoders")
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		result.Detail = fmt.Sprintf("list encoders: %v", err)
		return result
	}
	if hasEncoder(stdout.Bytes(), RequiredEncoder) {
		result.Available = true
		return result
	}
	result.Detail = fmt.Sprintf("%s does not provide %s", binary, RequiredEncoder)
	return result
}

// hasEncoder scans `ffmpeg -encoders` output, whose rows look like
// " V....D libx264   libx264 H.264 / AVC ...".
func hasEncoder(output []byte, name string) bool {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[1] == name {
			return true
		}
	}
	return false
}
