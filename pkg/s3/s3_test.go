package s3

import "testing"

func TestEvidenceKey(t *testing.T) {
	tests := []struct {
		session, frame, format string
		want                   string
	}{
		{"exam-1", "01HZX", "jpeg", "evidence/exam-1/01HZX.jpg"},
		{"exam-1", "01HZY", "png", "evidence/exam-1/01HZY.png"},
		{"", "01HZZ", "webp", "evidence/anonymous/01HZZ.webp"},
		{"a/b", "01J00", "png", "evidence/a%2Fb/01J00.png"},
	}

	for _, tt := range tests {
		if got := EvidenceKey(tt.session, tt.frame, tt.format); got != tt.want {
			t.Errorf("EvidenceKey(%q, %q, %q) = %q, want %q", tt.session, tt.frame, tt.format, got, tt.want)
		}
	}
}

func TestExtractKeyFromS3Url(t *testing.T) {
	got := extractKeyFromS3Url("https://bucket.s3.ap-southeast-1.amazonaws.com/evidence/exam-1/01HZX.jpg")
	if got != "evidence/exam-1/01HZX.jpg" {
		t.Errorf("extractKeyFromS3Url() = %q", got)
	}
	if got := extractKeyFromS3Url("evidence/x.png"); got != "evidence/x.png" {
		t.Errorf("extractKeyFromS3Url(bare key) = %q", got)
	}
}
