package models

// Engine is an ElevenLabs model id
type Engine string

const (
	MultilingualV2 Engine = "eleven_multilingual_v2"
	FlashV2_5      Engine = "eleven_flash_v2_5"
	TurboV2_5      Engine = "eleven_turbo_v2_5"
)

const DefaultVoiceID = "21m00Tcm4TlvDq8ikWAM"

type TTSRequest struct {
	Model   Engine `json:"modelId"`
	Input   string `json:"text"`
	VoiceID string `json:"voiceId"`
}

type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

var DefaultVoiceSettings = VoiceSettings{
	Stability:       0.5,
	SimilarityBoost: 0.75,
}

type VoiceSample struct {
	FileName string
	Data     []byte
}

type CloneVoiceRequest struct {
	Name        string
	Description string
	Samples     []VoiceSample
}

type Voice struct {
	VoiceID  string `json:"voice_id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}
