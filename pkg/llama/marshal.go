package llama

import (
	"fmt"
	"strings"
	"unicode"
)

// applyTokenSentinel rewrites a zero token limit in place. Callers see the
// substituted value afterwards.
func applyTokenSentinel(po *PredictOptions) {
	if po.Tokens == 0 {
		po.Tokens = UnboundedTokens
	}
}

// checkCStrings rejects arguments that would be truncated at an interior NUL.
func checkCStrings(what string, ss ...string) error {
	for _, s := range ss {
		if strings.IndexByte(s, 0) >= 0 {
			return fmt.Errorf("%s: %w", what, ErrInteriorNUL)
		}
	}
	return nil
}

// marshalPredict builds the positional parameter image for one call.
func marshalPredict(prompt string, po *PredictOptions) (ParamSpec, error) {
	applyTokenSentinel(po)
	if err := checkCStrings("predict options", prompt, po.LogitBias, po.PathPromptCache, po.MainGPU, po.TensorSplit); err != nil {
		return ParamSpec{}, err
	}
	if err := checkCStrings("stop prompts", po.StopPrompts...); err != nil {
		return ParamSpec{}, err
	}

	var stops []string
	if len(po.StopPrompts) > 0 {
		stops = append([]string(nil), po.StopPrompts...)
	}

	return ParamSpec{
		Prompt:            prompt,
		Seed:              po.Seed,
		Threads:           po.Threads,
		Tokens:            po.Tokens,
		TopK:              po.TopK,
		TopP:              po.TopP,
		Temperature:       po.Temperature,
		Penalty:           po.Penalty,
		Repeat:            po.Repeat,
		IgnoreEOS:         po.IgnoreEOS,
		F16KV:             po.F16KV,
		Batch:             po.Batch,
		NKeep:             po.NKeep,
		StopPrompts:       stops,
		StopCount:         len(stops),
		TailFreeSamplingZ: po.TailFreeSamplingZ,
		TypicalP:          po.TypicalP,
		FrequencyPenalty:  po.FrequencyPenalty,
		PresencePenalty:   po.PresencePenalty,
		Mirostat:          po.Mirostat,
		MirostatETA:       po.MirostatETA,
		MirostatTAU:       po.MirostatTAU,
		PenalizeNL:        po.PenalizeNL,
		LogitBias:         po.LogitBias,
		PathPromptCache:   po.PathPromptCache,
		PromptCacheAll:    po.PromptCacheAll,
		MLock:             po.MLock,
		MMap:              po.MMap,
		MainGPU:           po.MainGPU,
		TensorSplit:       po.TensorSplit,
		PromptCacheRO:     po.PromptCacheRO,
	}, nil
}

// marshalTokenInput is marshalPredict for pre-tokenized input: empty prompt and
// no stop list.
func marshalTokenInput(po *PredictOptions) (ParamSpec, error) {
	spec, err := marshalPredict("", po)
	spec.StopPrompts = nil
	spec.StopCount = 0
	return spec, err
}

// trimOutput removes what the engine echoes around the generated text, in
// order: leading whitespace, one copy of the prompt, one newline, then
// trailing stop sequences.
func trimOutput(res, prompt string, stops []string) string {
	res = strings.TrimLeftFunc(res, unicode.IsSpace)
	res = strings.TrimPrefix(res, prompt)
	res = strings.TrimPrefix(res, "\n")
	return trimStops(res, stops)
}

// trimStops strips stop sequences from the end of res until none of them is a
// suffix any more, so trimStops(trimStops(s)) == trimStops(s).
func trimStops(res string, stops []string) string {
	for {
		trimmed := false
		for _, s := range stops {
			if s == "" {
				continue
			}
			if strings.HasSuffix(res, s) {
				res = res[:len(res)-len(s)]
				trimmed = true
			}
		}
		if !trimmed {
			return res
		}
	}
}
