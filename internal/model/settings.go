package model

type Settings struct {
	SemanticSearchEnabled bool `json:"semantic_search_enabled"`
	EncoderEnabled        bool `json:"encoder_enabled"`
}

func (s Settings) IndexingAllowed() bool {
	return s.SemanticSearchEnabled && s.EncoderEnabled
}
