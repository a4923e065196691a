package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mediascribe/pipeline/internal/core/domain"
)

// ==================== Mocks ====================

type fakeRunner struct {
	results []commandResult
	errs    []error
	calls   [][]string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (commandResult, error) {
	i := len(f.calls)
	f.calls = append(f.calls, append([]string{name}, args...))
	var res commandResult
	var err error
	if i < len(f.results) {
		res = f.results[i]
	}
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return res, err
}

// ==================== Failure Classification ====================

func TestClassifyToolFailure_Permanent(t *testing.T) {
	err := classifyToolFailure("download", "ERROR: Video unavailable", errors.New("exit status 1"))

	var permErr *domain.PermanentError
	if !errors.As(err, &permErr) {
		t.Fatalf("expected PermanentError, got %T: %v", err, err)
	}
}

func TestClassifyToolFailure_Transient(t *testing.T) {
	err := classifyToolFailure("download",
		"ERROR: unable to download webpage: connection reset by peer",
		errors.New("exit status 1"))

	var netErr *domain.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %T: %v", err, err)
	}
}

func TestClassifyToolFailure_DiskFull(t *testing.T) {
	err := classifyToolFailure("download", "OSError: no space left on device", errors.New("exit status 1"))

	var resErr *domain.ResourceError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected ResourceError, got %T: %v", err, err)
	}
	if resErr.Kind != domain.ResourceDisk {
		t.Errorf("expected disk resource, got %s", resErr.Kind)
	}
}

func TestClassifyToolFailure_Timeout(t *testing.T) {
	err := classifyToolFailure("download", "", context.DeadlineExceeded)

	var netErr *domain.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError for deadline, got %T: %v", err, err)
	}
}

// ==================== Downloader ====================

func TestDownloaderProbe_RetriesTransient(t *testing.T) {
	runner := &fakeRunner{
		results: []commandResult{
			{Stderr: "ERROR: timed out", ExitCode: 1},
			{Stdout: `{"id":"abc123","title":"Test","duration":120.5}`},
		},
		errs: []error{errors.New("exit status 1"), nil},
	}
	d := NewDownloader("yt-dlp", t.TempDir(), 0, nil)
	d.runner = runner

	info, err := d.Probe(context.Background(), "https://example.com/v/abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runner.calls) != 2 {
		t.Errorf("expected 2 attempts, got %d", len(runner.calls))
	}
	if info.ID != "abc123" || info.Duration != 120.5 {
		t.Errorf("unexpected metadata: %+v", info)
	}
}

func TestDownloaderProbe_PermanentNotRetried(t *testing.T) {
	runner := &fakeRunner{
		results: []commandResult{{Stderr: "ERROR: Private video", ExitCode: 1}},
		errs:    []error{errors.New("exit status 1")},
	}
	d := NewDownloader("yt-dlp", t.TempDir(), 0, nil)
	d.runner = runner

	_, err := d.Probe(context.Background(), "https://example.com/v/priv")
	var permErr *domain.PermanentError
	if !errors.As(err, &permErr) {
		t.Fatalf("expected PermanentError, got %v", err)
	}
	if len(runner.calls) != 1 {
		t.Errorf("permanent failure should not retry, got %d attempts", len(runner.calls))
	}
}

// ==================== Whisper Output ====================

func TestParseWhisperOutput(t *testing.T) {
	raw := []byte(`{
		"result": {"language": "en"},
		"transcription": [
			{"offsets": {"from": 0, "to": 2500}, "text": " Hello there."},
			{"offsets": {"from": 2500, "to": 5000}, "text": " Second segment."},
			{"offsets": {"from": 5000, "to": 5000}, "text": "   "}
		]
	}`)

	out, err := parseWhisperOutput(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Language != "en" {
		t.Errorf("expected language en, got %q", out.Language)
	}
	if len(out.Segments) != 2 {
		t.Fatalf("blank segment should be dropped, got %d segments", len(out.Segments))
	}
	if out.Segments[0].Start != 0 || out.Segments[0].End != 2.5 {
		t.Errorf("unexpected first segment times: %+v", out.Segments[0])
	}
	if out.Text != "Hello there. Second segment." {
		t.Errorf("unexpected joined text: %q", out.Text)
	}
}

func TestWhisperTranscribe_MissingModelIsResourceError(t *testing.T) {
	w := NewWhisper("whisper-cli", t.TempDir(), 0, nil)
	w.runner = &fakeRunner{}

	_, err := w.Transcribe(context.Background(), "/tmp/audio.wav", "en", domain.ModelSmall)
	var resErr *domain.ResourceError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected ResourceError, got %v", err)
	}
	if resErr.Kind != domain.ResourceModel {
		t.Errorf("expected model resource kind, got %s", resErr.Kind)
	}
}

func TestWhisperTranscribe_OOMStderr(t *testing.T) {
	modelsDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(modelsDir, "ggml-small.bin"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewWhisper("whisper-cli", modelsDir, 0, nil)
	w.runner = &fakeRunner{
		results: []commandResult{{Stderr: "ggml_aligned_malloc: failed to allocate 2048 MB", ExitCode: 1}},
		errs:    []error{errors.New("exit status 1")},
	}

	_, err := w.Transcribe(context.Background(), "/tmp/audio.wav", "en", domain.ModelSmall)
	var resErr *domain.ResourceError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected ResourceError, got %v", err)
	}
	if !resErr.OutOfMemory() {
		t.Errorf("expected out-of-memory resource error, got kind %s", resErr.Kind)
	}
}

func TestWhisperTranscribe_ReadsJSONOutput(t *testing.T) {
	modelsDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(modelsDir, "ggml-base.bin"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	workDir := t.TempDir()
	audioPath := filepath.Join(workDir, "audio.wav")
	jsonPath := filepath.Join(workDir, "audio-base.json")
	payload := `{"result":{"language":"de"},"transcription":[{"offsets":{"from":0,"to":1000},"text":"Hallo."}]}`
	if err := os.WriteFile(jsonPath, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewWhisper("whisper-cli", modelsDir, 0, nil)
	w.runner = &fakeRunner{}

	out, err := w.Transcribe(context.Background(), audioPath, "auto", domain.ModelBase)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Language != "de" || len(out.Segments) != 1 {
		t.Errorf("unexpected output: %+v", out)
	}
	if _, err := os.Stat(jsonPath); !os.IsNotExist(err) {
		t.Error("transcript json should be removed after parsing")
	}
}

// ==================== Audio Extraction ====================

func TestClassifyExtractFailure_UnsupportedFormat(t *testing.T) {
	err := classifyExtractFailure("Invalid data found when processing input", errors.New("exit status 1"))

	var permErr *domain.PermanentError
	if !errors.As(err, &permErr) {
		t.Fatalf("expected PermanentError, got %v", err)
	}
}

func TestAudioExtract_MissingInput(t *testing.T) {
	e := NewAudioExtractor("ffmpeg", 0, nil)
	e.runner = &fakeRunner{}

	_, err := e.Extract(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	var permErr *domain.PermanentError
	if !errors.As(err, &permErr) {
		t.Fatalf("expected PermanentError for missing input, got %v", err)
	}
}
