// Package processor implements the post-execution pipeline: summary
// extraction from the agent's output directory, cloud upload via external
// CLIs, and email notification.
package processor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/conductorhq/agentorch/internal/logger"
	"github.com/conductorhq/agentorch/internal/metrics"
	"github.com/conductorhq/agentorch/internal/task"
)

const maxSummaryLength = 500
const maxAttachmentBytes = 10 * 1024 * 1024

var (
	summaryFilenames = []string{"README.md", "summary.md", "report.md", "output.md", "result.md"}
	mainOutputCandidates = []string{"report.pdf", "report.md", "output.pdf", "output.md", "README.md", "summary.md"}

	gdriveURLPattern   = regexp.MustCompile(`https://drive\.google\.com/\S+`)
	onedriveURLPattern = regexp.MustCompile(`https://\S+`)
)

// Result is the combined outcome of all post-processing steps.
type Result struct {
	Summary           string
	CloudLinks        map[string]string
	UploadErrors      []string
	NotificationSent  bool
	NotificationError string
}

// Processor runs the post-execution pipeline for a completed agent run.
type Processor struct{}

func New() *Processor {
	return &Processor{}
}

// Process inspects task.OutputsPath and agentOutput, uploads results per
// task.Delivery.Storage and sends an email per task.Delivery.Email.
func (p *Processor) Process(t *task.Task, agentOutput string) *Result {
	result := &Result{}

	result.Summary = extractSummary(t.OutputsPath, agentOutput)

	if t.Delivery == nil {
		return result
	}

	if t.Delivery.Storage != "" {
		result.CloudLinks = map[string]string{}
		folder := t.Delivery.Folder
		if folder == "" {
			folder = "DeepAgent/Results"
		}

		if t.Delivery.Storage == "google_drive" || t.Delivery.Storage == "both" {
			upload := uploadToGoogleDrive(t.OutputsPath, folder, t.ID)
			if upload.success {
				result.CloudLinks["google_drive"] = upload.url
				metrics.RecordUpload("google_drive", "success")
			} else {
				result.UploadErrors = append(result.UploadErrors, fmt.Sprintf("Google Drive: %s", upload.err))
				metrics.RecordUpload("google_drive", "error")
			}
		}

		if t.Delivery.Storage == "onedrive" || t.Delivery.Storage == "both" {
			upload := uploadToOneDrive(t.OutputsPath, folder, t.ID)
			if upload.success {
				result.CloudLinks["onedrive"] = upload.url
				metrics.RecordUpload("onedrive", "success")
			} else {
				result.UploadErrors = append(result.UploadErrors, fmt.Sprintf("OneDrive: %s", upload.err))
				metrics.RecordUpload("onedrive", "error")
			}
		}
	}

	if t.Delivery.Email != "" {
		err := sendEmail(t.Delivery.Email, t, result.Summary, result.CloudLinks)
		if err == nil {
			result.NotificationSent = true
			metrics.RecordNotification("sent")
		} else {
			result.NotificationError = err.Error()
			metrics.RecordNotification("error")
		}
	}

	return result
}

type uploadOutcome struct {
	success bool
	url     string
	err     string
}

func extractSummary(outputsPath, agentOutput string) string {
	for _, name := range summaryFilenames {
		path := filepath.Join(outputsPath, name)
		if data, err := os.ReadFile(path); err == nil {
			return extractFirstSection(string(data))
		}
	}

	if matches, err := filepath.Glob(filepath.Join(outputsPath, "*.md")); err == nil && len(matches) > 0 {
		sort.Strings(matches)
		if data, err := os.ReadFile(matches[0]); err == nil {
			return extractFirstSection(string(data))
		}
	}

	if agentOutput != "" {
		return extractFirstSection(agentOutput)
	}

	return ""
}

// extractFirstSection takes the prefix of content up to (excluding) the
// second top-level heading, skipping fenced code blocks, soft-capped at
// maxSummaryLength characters.
func extractFirstSection(content string) string {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	var summaryLines []string
	inCodeBlock := false
	length := 0
	topLevelHeadings := 0

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inCodeBlock = !inCodeBlock
			continue
		}
		if inCodeBlock {
			continue
		}
		if len(summaryLines) == 0 && strings.TrimSpace(line) == "" {
			continue
		}
		if line == "#" || strings.HasPrefix(line, "# ") {
			topLevelHeadings++
			if topLevelHeadings == 2 {
				break
			}
		}

		summaryLines = append(summaryLines, line)
		length += len(line)
		if length > maxSummaryLength {
			break
		}
	}

	summary := strings.TrimSpace(strings.Join(summaryLines, "\n"))
	if len(summary) > maxSummaryLength {
		truncated := summary[:maxSummaryLength]
		if idx := strings.LastIndex(truncated, " "); idx > 0 {
			truncated = truncated[:idx]
		}
		summary = truncated + "..."
	}

	return summary
}

func listUploadableFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func uploadToGoogleDrive(outputsPath, folder, taskID string) uploadOutcome {
	targetFolder := fmt.Sprintf("%s/%s", folder, taskID)

	files, err := listUploadableFiles(outputsPath)
	if err != nil {
		return uploadOutcome{success: false, err: err.Error()}
	}
	if len(files) == 0 {
		return uploadOutcome{success: false, err: "No files to upload"}
	}

	for _, file := range files {
		out, err := runCLI("gdcli", "upload", file, targetFolder)
		if err != nil {
			if isNotFound(err) {
				return uploadOutcome{success: false, err: "gdcli not found. Is pi-skills installed?"}
			}
			return uploadOutcome{success: false, err: firstNonEmpty(out.stderr, err.Error())}
		}
	}

	out, err := runCLI("gdcli", "share", targetFolder, "--anyone", "--role", "reader")
	url := fmt.Sprintf("gdrive://%s", targetFolder)
	if err == nil {
		if match := gdriveURLPattern.FindString(out.stdout); match != "" {
			url = match
		}
	}

	logger.Get().Info().Int("files", len(files)).Str("folder", targetFolder).Msg("uploaded to google drive")
	return uploadOutcome{success: true, url: url}
}

func uploadToOneDrive(outputsPath, folder, taskID string) uploadOutcome {
	targetFolder := fmt.Sprintf("%s/%s", folder, taskID)

	files, err := listUploadableFiles(outputsPath)
	if err != nil {
		return uploadOutcome{success: false, err: err.Error()}
	}
	if len(files) == 0 {
		return uploadOutcome{success: false, err: "No files to upload"}
	}

	for _, file := range files {
		targetPath := fmt.Sprintf("%s/%s", targetFolder, filepath.Base(file))
		out, err := runCLI("onedrive", "cp", file, targetPath)
		if err != nil {
			if isNotFound(err) {
				return uploadOutcome{success: false, err: "onedrive-cli not found. Is it installed?"}
			}
			return uploadOutcome{success: false, err: firstNonEmpty(out.stderr, err.Error())}
		}
	}

	out, err := runCLI("onedrive", "chmod", targetFolder, "+r")
	url := fmt.Sprintf("onedrive://%s", targetFolder)
	if err == nil {
		if match := onedriveURLPattern.FindString(out.stdout); match != "" {
			url = match
		}
	}

	logger.Get().Info().Int("files", len(files)).Str("folder", targetFolder).Msg("uploaded to onedrive")
	return uploadOutcome{success: true, url: url}
}

func sendEmail(to string, t *task.Task, summary string, cloudLinks map[string]string) error {
	subject := fmt.Sprintf("Task Complete: %s", t.Title)
	body := buildEmailBody(t.Title, summary, cloudLinks)

	args := []string{"send", "--to", to, "--subject", subject, "--body", body}

	if mainFile := findMainOutput(t.OutputsPath); mainFile != "" {
		if info, err := os.Stat(mainFile); err == nil && info.Size() < maxAttachmentBytes {
			args = append(args, "--attach", mainFile)
		}
	}

	out, err := runCLI("gmcli", args...)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("gmcli not found. Is pi-skills installed?")
		}
		return fmt.Errorf("%s", firstNonEmpty(out.stderr, err.Error()))
	}

	logger.Get().Info().Str("to", to).Msg("email notification sent")
	return nil
}

func buildEmailBody(title, summary string, cloudLinks map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your task '%s' has been completed.\n\n", title)

	if summary != "" {
		fmt.Fprintf(&b, "## Summary\n%s\n\n", summary)
	}

	if len(cloudLinks) > 0 {
		b.WriteString("## Results\n")
		for _, service := range []string{"google_drive", "onedrive"} {
			url, ok := cloudLinks[service]
			if !ok {
				continue
			}
			name := "OneDrive"
			if service == "google_drive" {
				name = "Google Drive"
			}
			fmt.Fprintf(&b, "- %s: %s\n", name, url)
		}
		b.WriteString("\n")
	}

	b.WriteString("---\nGenerated by DeepAgent")
	return b.String()
}

func findMainOutput(outputsPath string) string {
	for _, name := range mainOutputCandidates {
		path := filepath.Join(outputsPath, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	for _, pattern := range []string{"*.pdf", "*.md"} {
		if matches, err := filepath.Glob(filepath.Join(outputsPath, pattern)); err == nil && len(matches) > 0 {
			sort.Strings(matches)
			return matches[0]
		}
	}

	return ""
}

type cliOutput struct {
	stdout string
	stderr string
}

func runCLI(name string, args ...string) (cliOutput, error) {
	cmd := exec.Command(name, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := cliOutput{stdout: stdout.String(), stderr: stderr.String()}
	return out, err
}

func isNotFound(err error) bool {
	var execErr *exec.Error
	return errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
