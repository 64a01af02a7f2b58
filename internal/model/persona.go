// Package model defines data structures for the persona duet.
package model

import (
	"fmt"
	"strings"
)

// PersonaConfig is a named conversational identity.
type PersonaConfig struct {
	DisplayName       string   `json:"display_name" yaml:"display_name"`
	Personality       string   `json:"personality" yaml:"personality"`
	SpeakingStyle     string   `json:"speaking_style" yaml:"speaking_style"`
	Interests         []string `json:"interests" yaml:"interests"`
	SystemInstruction string   `json:"system_instruction,omitempty" yaml:"system_instruction,omitempty"`
}

// SystemPrompt returns the persona's fixed system instruction, or synthesizes
// one from personality, style and interests when none is set.
func (p PersonaConfig) SystemPrompt() string {
	if strings.TrimSpace(p.SystemInstruction) != "" {
		return p.SystemInstruction
	}
	return fmt.Sprintf(
		"You are %s. Personality: %s. Speaking style: %s. Interests: %s. "+
			"Stay in character and keep responses conversational.",
		p.DisplayName, p.Personality, p.SpeakingStyle, strings.Join(p.Interests, ", "),
	)
}

// PersonaPair is the fixed two-role speaker model. The primary persona always
// responds first after the initial prompt.
type PersonaPair struct {
	Primary   PersonaConfig
	Secondary PersonaConfig
}

// Speaker returns the persona for a 0-based turn index; turns strictly
// alternate starting with primary.
func (p PersonaPair) Speaker(turn int) PersonaConfig {
	if turn%2 == 0 {
		return p.Primary
	}
	return p.Secondary
}
