package ai

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"fathom/internal/logger"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// signalSchema 交易信号的 JSON Schema。模型输出先过这一层，
// 再做 schema 表达不了的业务校验（hasOrder 与 orders 的一致性等）。
const signalSchema = `{
  "type": "object",
  "required": ["analysis", "signal", "execution", "riskWarning"],
  "properties": {
    "analysis": {
      "type": "object",
      "required": ["marketTrend", "positionStatus", "riskAssessment"],
      "properties": {
        "marketTrend": {"type": "string"},
        "positionStatus": {"type": "string"},
        "riskAssessment": {"type": "string"}
      }
    },
    "signal": {
      "type": "object",
      "required": ["action", "confidence", "reasoning"],
      "properties": {
        "action": {"enum": ["HOLD", "OPEN_LONG", "OPEN_SHORT", "CLOSE_LONG", "CLOSE_SHORT", "ADD_LONG", "ADD_SHORT"]},
        "confidence": {"enum": ["HIGH", "MEDIUM", "LOW"]},
        "reasoning": {"type": "string"}
      }
    },
    "execution": {
      "type": "object",
      "required": ["hasOrder", "orders"],
      "properties": {
        "hasOrder": {"type": "boolean"},
        "orders": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["type", "size", "priceType", "price"],
            "properties": {
              "type": {"enum": ["1", "2", "3", "4"]},
              "typeDescription": {"type": "string"},
              "size": {"type": "string"},
              "priceType": {"enum": ["MARKET", "LIMIT"]},
              "price": {"type": "string"},
              "reasoning": {"type": "string"}
            }
          }
        }
      }
    },
    "riskWarning": {"type": "string"}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compiledSignalSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("signal.json", strings.NewReader(signalSchema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile("signal.json")
	})
	return compiledSchema, schemaErr
}

// ParseSignal 从模型原始输出中提取并校验交易信号。
// 输出可能被 markdown 代码块包裹或混有说明文字，先剥离再解析。
func ParseSignal(raw string) (Signal, error) {
	payload := extractJSON(raw)
	if payload == "" {
		return Signal{}, fmt.Errorf("模型输出中未找到 JSON 对象")
	}
	if !gjson.Valid(payload) {
		return Signal{}, fmt.Errorf("模型输出 JSON 格式无效")
	}

	schema, err := compiledSignalSchema()
	if err != nil {
		return Signal{}, fmt.Errorf("编译信号 schema 失败: %w", err)
	}
	var doc any
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return Signal{}, fmt.Errorf("解析模型输出失败: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return Signal{}, fmt.Errorf("信号 schema 校验失败: %w", err)
	}

	var signal Signal
	if err := json.Unmarshal([]byte(payload), &signal); err != nil {
		return Signal{}, fmt.Errorf("反序列化信号失败: %w", err)
	}
	if err := validateSignal(signal); err != nil {
		return Signal{}, err
	}
	return signal, nil
}

// validateSignal 业务层校验。
func validateSignal(s Signal) error {
	if s.Execution.HasOrder && len(s.Execution.Orders) == 0 {
		return fmt.Errorf("hasOrder 为 true 但 orders 数组为空")
	}
	if !s.Execution.HasOrder && len(s.Execution.Orders) > 0 {
		logger.Warnf("hasOrder 为 false 但 orders 数组不为空，忽略订单")
	}
	if s.Execution.HasOrder {
		for i, order := range s.Execution.Orders {
			if _, err := order.OrderRequest(""); err != nil {
				return fmt.Errorf("订单#%d 无效: %w", i+1, err)
			}
		}
	}
	return nil
}

// extractJSON 剥离 markdown 代码块与前后噪声，返回最外层 JSON 对象。
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if idx := strings.Index(raw, "```"); idx >= 0 {
		rest := raw[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			raw = strings.TrimSpace(rest[:end])
		}
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}
