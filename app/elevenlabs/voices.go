package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/url"
	"voxa/m/v2/app/models"
)

var ErrNoSamples = errors.New("at least one voice sample is required")

// CloneVoice uploads samples as a new instant voice clone.
func (a *API) CloneVoice(ctx context.Context, request models.CloneVoiceRequest) (*models.Voice, error) {
	if len(request.Samples) == 0 {
		return nil, ErrNoSamples
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("name", request.Name); err != nil {
		return nil, err
	}
	if request.Description != "" {
		if err := writer.WriteField("description", request.Description); err != nil {
			return nil, err
		}
	}
	for _, sample := range request.Samples {
		part, err := writer.CreateFormFile("files", sample.FileName)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(sample.Data); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := a.newRequest(ctx, http.MethodPost, "/v1/voices/add", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	voice := models.Voice{Name: request.Name}
	if err := json.NewDecoder(resp.Body).Decode(&voice); err != nil {
		return nil, err
	}
	return &voice, nil
}

// DeleteVoice removes a cloned voice. A voice that is already gone is not an error.
func (a *API) DeleteVoice(ctx context.Context, voiceID string) error {
	req, err := a.newRequest(ctx, http.MethodDelete, "/v1/voices/"+url.PathEscape(voiceID), nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return checkResponse(resp)
}
