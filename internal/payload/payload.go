// Package payload defines the job kinds the queue carries.
//
// Payload is a closed sum type: every variant lives in this package. The
// queue engine only moves encoded bytes; executors switch on the concrete
// type.
package payload

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Type tags a payload variant. It is stored in the job's type column.
type Type string

const (
	TypeClaudeExtraction Type = "claude_extraction"
	TypeCreateFile       Type = "create_file"
	TypeDeleteFile       Type = "delete_file"
	TypeSyncAWS          Type = "sync_aws"
	TypeEcho             Type = "echo"
)

// ErrUnknownType is returned when decoding a tag no variant claims.
var ErrUnknownType = errors.New("unknown job type")

// ValidationError reports a malformed payload field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Reason: "is required"}
	}
	return nil
}

// Payload is implemented by every job kind.
type Payload interface {
	Type() Type
	Validate() error
	isPayload()
}

// ClaudeExtraction asks an extraction agent to process a prompt against a
// repository checkout.
type ClaudeExtraction struct {
	Name          string  `json:"name"`
	Prompt        string  `json:"prompt"`
	Branch        *string `json:"branch,omitempty"`
	TargetPath    *string `json:"target_path,omitempty"`
	OriginURL     *string `json:"origin_url,omitempty"`
	RequirementID *string `json:"requirement_id,omitempty"`
	PromptHash    string  `json:"prompt_hash"`
}

func (ClaudeExtraction) Type() Type { return TypeClaudeExtraction }
func (ClaudeExtraction) isPayload() {}

// Validate also fills PromptHash when the caller left it empty.
func (p *ClaudeExtraction) Validate() error {
	if err := required("name", p.Name); err != nil {
		return err
	}
	if err := required("prompt", p.Prompt); err != nil {
		return err
	}
	if p.PromptHash == "" {
		p.PromptHash = HashPrompt(p.Prompt)
	}
	return nil
}

// HashPrompt returns the hex SHA-256 of prompt.
func HashPrompt(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// CreateFile writes Content to Path.
type CreateFile struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Overwrite bool   `json:"overwrite,omitempty"`
}

func (CreateFile) Type() Type { return TypeCreateFile }
func (CreateFile) isPayload() {}

func (p *CreateFile) Validate() error {
	return required("path", p.Path)
}

// DeleteFile removes Path.
type DeleteFile struct {
	Path          string `json:"path"`
	RequireExists bool   `json:"require_exists,omitempty"`
}

func (DeleteFile) Type() Type { return TypeDeleteFile }
func (DeleteFile) isPayload() {}

func (p *DeleteFile) Validate() error {
	return required("path", p.Path)
}

// SyncAWS reconciles one cloud resource with Config.
type SyncAWS struct {
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	Config       json.RawMessage `json:"config"`
}

func (SyncAWS) Type() Type { return TypeSyncAWS }
func (SyncAWS) isPayload() {}

func (p *SyncAWS) Validate() error {
	if err := required("resource_type", p.ResourceType); err != nil {
		return err
	}
	if err := required("resource_id", p.ResourceID); err != nil {
		return err
	}
	if len(p.Config) == 0 {
		p.Config = json.RawMessage(`{}`)
	}
	if !json.Valid(p.Config) {
		return &ValidationError{Field: "config", Reason: "must be valid JSON"}
	}
	return nil
}

// Echo logs Message. Used for smoke tests.
type Echo struct {
	Message string `json:"message"`
}

func (Echo) Type() Type { return TypeEcho }
func (Echo) isPayload() {}

func (p *Echo) Validate() error {
	return required("message", p.Message)
}

// New returns an empty variant for t.
func New(t Type) (Payload, error) {
	switch t {
	case TypeClaudeExtraction:
		return &ClaudeExtraction{}, nil
	case TypeCreateFile:
		return &CreateFile{}, nil
	case TypeDeleteFile:
		return &DeleteFile{}, nil
	case TypeSyncAWS:
		return &SyncAWS{}, nil
	case TypeEcho:
		return &Echo{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
}

// Encode validates p and serializes it for storage.
func Encode(p Payload) (Type, []byte, error) {
	if p == nil {
		return "", nil, &ValidationError{Field: "payload", Reason: "is required"}
	}
	if err := p.Validate(); err != nil {
		return "", nil, err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode %s payload: %w", p.Type(), err)
	}
	return p.Type(), data, nil
}

// Decode parses data as the variant tagged t.
func Decode(t Type, data []byte) (Payload, error) {
	p, err := New(t)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", t, err)
	}
	return p, nil
}

// Parse decodes and validates untrusted input, e.g. an HTTP request body.
func Parse(t Type, data []byte) (Payload, error) {
	p, err := Decode(t, data)
	if err != nil {
		if errors.Is(err, ErrUnknownType) {
			return nil, &ValidationError{Field: "type", Reason: err.Error()}
		}
		return nil, &ValidationError{Field: "payload", Reason: err.Error()}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
