package strategyconfig

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadBatch reads a batch YAML file and returns it with the raw bytes
// SSOT 핵심: KnownFields(true)로 오타/미사용 필드 즉시 실패
func LoadBatch(path string) (*BatchConfig, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	var cfg BatchConfig
	if err := decodeStrict(data, &cfg); err != nil {
		return nil, data, fmt.Errorf("decode %s: %w", path, err)
	}

	if err := ValidateBatch(&cfg); err != nil {
		return nil, data, err
	}

	return &cfg, data, nil
}

// LoadStrategy reads a single-strategy YAML file
func LoadStrategy(path string) (*Strategy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var s Strategy
	if err := decodeStrict(data, &s); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	if err := Validate(&s); err != nil {
		return nil, err
	}

	return &s, nil
}

func decodeStrict(data []byte, out interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // 알 수 없는 필드 발견 시 에러 반환
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty document")
		}
		return err
	}
	return nil
}

// Hash generates SHA256 hash from a Strategy (canonical JSON)
// 주의: map 대신 struct 사용으로 해시 재현성 보장
func Hash(s *Strategy) (string, error) {
	// Name/Description은 결과에 영향이 없으므로 제외
	canonical := *s
	canonical.Name = ""
	canonical.Description = ""

	// Struct → JSON (결정적 순서)
	jsonBytes, err := json.Marshal(canonical)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}
