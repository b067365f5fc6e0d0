// Package state persists per-participant conversation state, either hidden in
// the bot's own comments or in Redis.
package state

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"basegraph.app/concierge/internal/model"
)

const (
	markerPrefix  = "<!-- supportbot_state:"
	markerSuffix  = " -->"
	compressedTag = "compressed:"
	compressAbove = 5000
	warnAbove     = 50000
)

const (
	// DefaultMaxAsked bounds AskedFields after each follow-up round.
	DefaultMaxAsked = 20
	// UnknownCategory is used when a participant opts out before classification.
	UnknownCategory = "unknown"
)

var markerPattern = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(markerPrefix) + `(.+?)` + regexp.QuoteMeta(markerSuffix))

// Encode appends st to body as a hidden marker, replacing any marker already
// present. JSON above 5000 bytes is gzipped and base64 encoded.
func Encode(body string, st *model.ConversationState) (string, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}

	if len(data) > warnAbove {
		slog.Warn("state payload approaching comment size limit",
			"size_bytes", len(data),
			"asked_fields", len(st.AskedFields))
	}

	payload := string(data)
	if len(data) > compressAbove {
		compressed, err := compress(data)
		if err != nil {
			return "", fmt.Errorf("compress state: %w", err)
		}
		payload = compressedTag + compressed
	}

	return Strip(body) + "\n\n" + markerPrefix + payload + markerSuffix, nil
}

// Decode reads the first marker in body. Anything unreadable is treated as
// no state.
func Decode(body string) (*model.ConversationState, bool) {
	if strings.TrimSpace(body) == "" {
		return nil, false
	}

	m := markerPattern.FindStringSubmatch(body)
	if m == nil {
		return nil, false
	}

	data := []byte(m[1])
	if rest, ok := strings.CutPrefix(m[1], compressedTag); ok {
		raw, err := decompress(rest)
		if err != nil {
			slog.Debug("state marker decode failed", "reason", err.Error())
			return nil, false
		}
		data = raw
	}

	if isLegacy(data) {
		st, err := decodeLegacy(data)
		if err != nil {
			slog.Debug("state marker decode failed", "reason", fmt.Sprintf("legacy json: %v", err))
			return nil, false
		}
		return st, true
	}

	var st model.ConversationState
	if err := json.Unmarshal(data, &st); err != nil {
		slog.Debug("state marker decode failed", "reason", fmt.Sprintf("json: %v", err))
		return nil, false
	}

	return &st, true
}

// Strip removes every marker from body and trims it.
func Strip(body string) string {
	if strings.TrimSpace(body) == "" {
		return body
	}
	return strings.TrimSpace(markerPattern.ReplaceAllString(body, ""))
}

// NewState creates the state for a participant's first round.
func NewState(category, participant string, now time.Time) *model.ConversationState {
	return &model.ConversationState{
		Category:    category,
		AskedFields: []string{},
		LastUpdated: now,
		Participant: participant,
		Phase:       model.PhaseNew,
	}
}

// Prune keeps only the most recent max asked fields.
func Prune(st *model.ConversationState, max int) {
	if len(st.AskedFields) <= max {
		return
	}
	st.AskedFields = append([]string(nil), st.AskedFields[len(st.AskedFields)-max:]...)
}

func compress(data []byte) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func decompress(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return out, nil
}
