package processor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductorhq/agentorch/internal/task"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestExtractFirstSection_StopsAtSecondHeading(t *testing.T) {
	content := "# Title\nIntro text.\n\n# Second Heading\nshould not appear"
	summary := extractFirstSection(content)
	assert.Contains(t, summary, "Intro text")
	assert.NotContains(t, summary, "Second Heading")
	assert.NotContains(t, summary, "should not appear")
}

func TestExtractFirstSection_SkipsFencedCodeBlocks(t *testing.T) {
	content := "# Title\nBefore code.\n```\ncode here\nmore code\n```\nAfter code."
	summary := extractFirstSection(content)
	assert.Contains(t, summary, "Before code")
	assert.Contains(t, summary, "After code")
	assert.NotContains(t, summary, "code here")
}

func TestExtractFirstSection_TruncatesAtWordBoundary(t *testing.T) {
	word := "abcdefghij "
	content := strings.Repeat(word, 60)

	summary := extractFirstSection(content)
	assert.True(t, len(summary) <= maxSummaryLength+3)
	assert.True(t, strings.HasSuffix(summary, "..."))
}

func TestExtractSummary_PrefersReadme(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "README.md", "# Readme\nreadme content")
	writeFile(t, dir, "other.md", "# Other\nother content")

	summary := extractSummary(dir, "fallback")
	assert.Contains(t, summary, "readme content")
}

func TestExtractSummary_FallsBackToAnyMarkdown(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.md", "# Notes\nnotes content")

	summary := extractSummary(dir, "fallback")
	assert.Contains(t, summary, "notes content")
}

func TestExtractSummary_FallsBackToAgentOutput(t *testing.T) {
	dir := t.TempDir()
	summary := extractSummary(dir, "# Output\nraw agent text")
	assert.Contains(t, summary, "raw agent text")
}

func TestFindMainOutput_PriorityOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "summary.md", "x")
	writeFile(t, dir, "report.md", "x")

	assert.Equal(t, filepath.Join(dir, "report.md"), findMainOutput(dir))
}

func TestFindMainOutput_FallsBackToGlob(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "random.md", "x")

	assert.Equal(t, filepath.Join(dir, "random.md"), findMainOutput(dir))
}

func TestFindMainOutput_NoneFound(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "", findMainOutput(dir))
}

func TestProcess_NoDelivery(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "README.md", "# Readme\nall good")

	p := New()
	tk := &task.Task{ID: "t1", Title: "My Task", OutputsPath: dir}

	result := p.Process(tk, "")
	assert.Contains(t, result.Summary, "all good")
	assert.Nil(t, result.CloudLinks)
	assert.False(t, result.NotificationSent)
}

func TestProcess_UploadNoFilesProducesError(t *testing.T) {
	dir := t.TempDir()

	p := New()
	tk := &task.Task{
		ID:          "t1",
		Title:       "My Task",
		OutputsPath: dir,
		Delivery:    &task.Delivery{Storage: "google_drive", Folder: "F"},
	}

	result := p.Process(tk, "")
	require.NotNil(t, result.CloudLinks)
	assert.Empty(t, result.CloudLinks)
	require.Len(t, result.UploadErrors, 1)
	assert.Contains(t, result.UploadErrors[0], "Google Drive")
}

func TestBuildEmailBody_IncludesSummaryAndLinks(t *testing.T) {
	body := buildEmailBody("My Task", "a short summary", map[string]string{
		"google_drive": "https://drive.google.com/x",
	})

	assert.Contains(t, body, "My Task")
	assert.Contains(t, body, "a short summary")
	assert.Contains(t, body, "Google Drive: https://drive.google.com/x")
	assert.Contains(t, body, "Generated by DeepAgent")
}
