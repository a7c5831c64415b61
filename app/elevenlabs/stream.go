package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"voxa/m/v2/app/config"
	"voxa/m/v2/app/models"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

type streamMessage struct {
	Text                 string                `json:"text"`
	VoiceSettings        *models.VoiceSettings `json:"voice_settings,omitempty"`
	TryTriggerGeneration bool                  `json:"try_trigger_generation,omitempty"`
}

type streamChunk struct {
	Audio   *string `json:"audio"`
	IsFinal bool    `json:"isFinal"`
	Message string  `json:"message,omitempty"`
	Error   string  `json:"error,omitempty"`
}

func (a *API) streamURL(tts models.TTSRequest) string {
	base := a.endpoint
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	query := url.Values{}
	query.Set("model_id", string(tts.Model))
	query.Set("output_format", "mp3_44100_128")
	return base + "/v1/text-to-speech/" + url.PathEscape(tts.VoiceID) + "/stream-input?" + query.Encode()
}

// StreamSpeech synthesizes over the stream-input websocket and returns the
// concatenated mp3 chunks.
func (a *API) StreamSpeech(ctx context.Context, tts models.TTSRequest) ([]byte, error) {
	if err := normalize(&tts); err != nil {
		return nil, err
	}
	timeNow := time.Now()
	defer func() {
		config.CONFIG.DataDogClient.Timing("elevenlabs.tts_stream.latency", time.Since(timeNow), []string{"model:" + string(tts.Model)}, 1)
	}()

	header := http.Header{}
	header.Set("xi-api-key", a.authToken)
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, a.streamURL(tts), header)
	if err != nil {
		if resp != nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: err.Error()}
		}
		return nil, fmt.Errorf("StreamSpeech: failed to connect: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	} else {
		_ = conn.SetReadDeadline(time.Now().Add(TIMEOUT))
	}

	settings := models.DefaultVoiceSettings
	messages := []streamMessage{
		{Text: " ", VoiceSettings: &settings},
		{Text: tts.Input + " ", TryTriggerGeneration: true},
		{Text: ""},
	}
	for _, message := range messages {
		if err := conn.WriteJSON(message); err != nil {
			return nil, fmt.Errorf("StreamSpeech: failed to send text: %w", err)
		}
	}

	audio := &bytes.Buffer{}
	for {
		var chunk streamChunk
		if err := conn.ReadJSON(&chunk); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && audio.Len() > 0 {
				break
			}
			return nil, fmt.Errorf("StreamSpeech: failed to read audio: %w", err)
		}
		if chunk.Error != "" {
			return nil, &APIError{StatusCode: http.StatusBadGateway, Message: chunk.Error + ": " + chunk.Message}
		}
		if chunk.Audio != nil && *chunk.Audio != "" {
			decoded, err := base64.StdEncoding.DecodeString(*chunk.Audio)
			if err != nil {
				return nil, fmt.Errorf("StreamSpeech: failed to decode audio chunk: %w", err)
			}
			audio.Write(decoded)
		}
		if chunk.IsFinal {
			break
		}
	}

	log.Debugf("StreamSpeech: received %d bytes for %d characters", audio.Len(), len(tts.Input))
	return audio.Bytes(), nil
}
