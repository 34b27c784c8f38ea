package ensemble

import (
	"encoding/json"
	"fmt"
	"strings"

	"arbiter/internal/pkg/jsonutil"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// 中文说明：
// 顾问返回的是自由文本，其中嵌着一个 JSON 对象。
// 解析路径：提取 JSON → schema 校验 → 字段读取 → 归一化。
// 任何一步失败都归为 ErrProviderInvalidResponse，由调度器就地降级。

const adviceSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["action", "confidence"],
  "properties": {
    "action": {"type": "string", "minLength": 1},
    "confidence": {"type": "number", "minimum": 0, "maximum": 100},
    "reasoning": {"type": "string"}
  }
}`

var adviceSchema = jsonschema.MustCompileString("advice.json", adviceSchemaJSON)

// ParseAdvice 把顾问原始输出解析为 ProviderResponse（不含延迟与 Provider 字段）。
func ParseAdvice(raw string) (ProviderResponse, error) {
	blob, ok := jsonutil.ExtractJSON(raw)
	if !ok {
		return ProviderResponse{}, fmt.Errorf("%w: no JSON found in output", ErrProviderInvalidResponse)
	}
	if !gjson.Valid(blob) {
		return ProviderResponse{}, fmt.Errorf("%w: malformed JSON", ErrProviderInvalidResponse)
	}
	var doc any
	if err := json.Unmarshal([]byte(blob), &doc); err != nil {
		return ProviderResponse{}, fmt.Errorf("%w: %v", ErrProviderInvalidResponse, err)
	}
	if err := adviceSchema.Validate(doc); err != nil {
		return ProviderResponse{}, fmt.Errorf("%w: schema: %v", ErrProviderInvalidResponse, compactSchemaError(err))
	}
	parsed := gjson.Parse(blob)
	action := NormalizeAction(parsed.Get("action").String())
	if action == "" {
		return ProviderResponse{}, fmt.Errorf("%w: unknown action %q", ErrProviderInvalidResponse, parsed.Get("action").String())
	}
	confidence := parsed.Get("confidence").Float()
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}
	return ProviderResponse{
		Action:     action,
		Confidence: confidence,
		Reasoning:  strings.TrimSpace(parsed.Get("reasoning").String()),
	}, nil
}

// compactSchemaError 把多行校验错误压成单行，避免日志刷屏。
func compactSchemaError(err error) string {
	msg := err.Error()
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		msg = ve.Message
		if len(ve.Causes) > 0 {
			msg = ve.Causes[0].Message + " at " + ve.Causes[0].InstanceLocation
		}
	}
	return strings.Join(strings.Fields(msg), " ")
}
