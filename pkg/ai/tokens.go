package ai

import (
	"strings"
	"sync"

	"github.com/OFFIS-RIT/soapkg/pkg/logger"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the tiktoken encoding used when none is configured.
const DefaultEncoding = "o200k_base"

// EncodingEstimate skips tiktoken and always uses EstimateTokens. It needs
// no encoder download.
const EncodingEstimate = "estimate"

var (
	encodersMu sync.Mutex
	encoders   = map[string]*tiktoken.Tiktoken{}
)

func getEncoder(name string) *tiktoken.Tiktoken {
	if name == "" {
		name = DefaultEncoding
	}

	encodersMu.Lock()
	defer encodersMu.Unlock()

	if enc, ok := encoders[name]; ok {
		return enc
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		logger.Warn("[AI] Token encoding unavailable, estimating token counts", "encoding", name, "err", err)
		enc = nil
	}
	encoders[name] = enc
	return enc
}

// CountTokens returns the number of tokens of text under the named tiktoken
// encoding. When the encoding cannot be loaded it estimates four tokens per
// three words.
func CountTokens(encoding string, text string) int {
	if encoding == EncodingEstimate {
		return EstimateTokens(text)
	}
	if enc := getEncoder(encoding); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return EstimateTokens(text)
}

// EstimateTokens approximates a token count from the number of words.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	return (words*4 + 2) / 3
}
