// Package callback implements the compact wire tokens carried in interactive
// button payloads. Producers fail fast on invalid input; the parser is
// deliberately permissive and returns nil for anything that does not match
// the grammar, so unrelated callback traffic is ignored silently.
package callback

import (
	"fmt"
	"strings"
)

// MaxTokenLen keeps tokens inside the messaging surface's payload limit.
const MaxTokenLen = 64

// Kind discriminates the two token shapes.
type Kind string

const (
	KindAnswer Kind = "answer"
	KindNav    Kind = "nav"
)

// NavAction is a navigation token's action field.
type NavAction string

const (
	NavNext   NavAction = "next"
	NavPrev   NavAction = "prev"
	NavFinish NavAction = "finish"
	NavHome   NavAction = "home"
)

// Payload is a decoded token.
type Payload struct {
	Quiz       string
	Kind       Kind
	QuestionID string
	OptionKey  string
	Action     NavAction
}

// AnswerToken builds `quiz:<name>:q:<qid>:ans:<key>`.
func AnswerToken(quiz, questionID, optionKey string) (string, error) {
	if !IsSlug(quiz) {
		return "", fmt.Errorf("invalid quiz name %q", quiz)
	}
	if questionID == "" || strings.Contains(questionID, ":") {
		return "", fmt.Errorf("invalid question id %q", questionID)
	}
	if !IsSlug(optionKey) {
		return "", fmt.Errorf("invalid option key %q", optionKey)
	}
	token := "quiz:" + quiz + ":q:" + questionID + ":ans:" + optionKey
	if len(token) > MaxTokenLen {
		return "", fmt.Errorf("token exceeds %d bytes: %q", MaxTokenLen, token)
	}
	return token, nil
}

// NavToken builds `quiz:<name>:nav:<action>`.
func NavToken(quiz string, action NavAction) (string, error) {
	if !IsSlug(quiz) {
		return "", fmt.Errorf("invalid quiz name %q", quiz)
	}
	switch action {
	case NavNext, NavPrev, NavFinish, NavHome:
	default:
		return "", fmt.Errorf("unknown nav action %q", action)
	}
	token := "quiz:" + quiz + ":nav:" + string(action)
	if len(token) > MaxTokenLen {
		return "", fmt.Errorf("token exceeds %d bytes: %q", MaxTokenLen, token)
	}
	return token, nil
}

// Parse decodes a token. It returns nil for any input outside the grammar;
// it never returns an error.
func Parse(token string) *Payload {
	if len(token) > MaxTokenLen {
		return nil
	}
	parts := strings.Split(token, ":")
	if len(parts) < 4 || parts[0] != "quiz" || !IsSlug(parts[1]) {
		return nil
	}
	switch {
	case len(parts) == 6 && parts[2] == "q" && parts[4] == "ans":
		if parts[3] == "" || !IsSlug(parts[5]) {
			return nil
		}
		return &Payload{
			Quiz:       parts[1],
			Kind:       KindAnswer,
			QuestionID: parts[3],
			OptionKey:  parts[5],
		}
	case len(parts) == 4 && parts[2] == "nav":
		switch NavAction(parts[3]) {
		case NavNext, NavPrev, NavFinish, NavHome:
			return &Payload{Quiz: parts[1], Kind: KindNav, Action: NavAction(parts[3])}
		}
	}
	return nil
}

// IsSlug reports whether s is a non-empty `[a-z0-9_-]+` token.
func IsSlug(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_' || c == '-' {
			continue
		}
		return false
	}
	return true
}
