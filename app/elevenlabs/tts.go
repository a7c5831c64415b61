package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
	"voxa/m/v2/app/config"
	"voxa/m/v2/app/models"

	log "github.com/sirupsen/logrus"
)

var (
	ErrEmptyInput    = errors.New("input is required for tts")
	ErrInputTooLarge = fmt.Errorf("input is longer than %d characters", MaxInputCharacters)
)

func normalize(tts *models.TTSRequest) error {
	if tts.Input == "" {
		return ErrEmptyInput
	}
	if len([]rune(tts.Input)) > MaxInputCharacters {
		return ErrInputTooLarge
	}
	if tts.VoiceID == "" {
		tts.VoiceID = models.DefaultVoiceID
	}
	if tts.Model == "" {
		tts.Model = models.MultilingualV2
	}
	return nil
}

// CreateSpeech synthesizes tts into mp3 bytes.
func (a *API) CreateSpeech(ctx context.Context, tts models.TTSRequest) ([]byte, error) {
	if err := normalize(&tts); err != nil {
		log.Warnf("CreateSpeech: %v", err)
		return nil, err
	}
	if a.streaming {
		return a.StreamSpeech(ctx, tts)
	}

	timeNow := time.Now()

	// Set the request body
	requestBody := struct {
		Text          string               `json:"text"`
		ModelID       string               `json:"model_id"`
		VoiceSettings models.VoiceSettings `json:"voice_settings"`
	}{
		Text:          tts.Input,
		ModelID:       string(tts.Model),
		VoiceSettings: models.DefaultVoiceSettings,
	}

	// Convert the request body to JSON
	requestBodyJSON, err := json.Marshal(requestBody)
	if err != nil {
		return nil, err
	}

	path := "/v1/text-to-speech/" + url.PathEscape(tts.VoiceID) + "?output_format=mp3_44100_128"
	req, err := a.newRequest(ctx, http.MethodPost, path, bytes.NewBuffer(requestBodyJSON))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	status := fmt.Sprintf("status:%d", 0)
	defer func() {
		config.CONFIG.DataDogClient.Timing("elevenlabs.tts.latency", time.Since(timeNow), []string{status, "model:" + string(tts.Model)}, 1)
	}()

	// Send the HTTP request
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	status = fmt.Sprintf("status:%d", resp.StatusCode)

	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	// Read the response body
	return io.ReadAll(resp.Body)
}
