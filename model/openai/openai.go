// Package openai provides an implementation of model.Gateway using the OpenAI
// Chat Completions API (streaming with function/tool calling). It adapts the
// runtime's normalized Request/Fragment structures into the SDK's message
// format and back.
package openai

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/sgrlabs/sgragent/core"
	"github.com/sgrlabs/sgragent/model"
)

// Options configure the OpenAI gateway adapter.
// Fields mirror a subset of Chat Completion parameters intentionally kept
// minimal; extend via functional options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	BaseURL             string
	APIKey              string
}

// Gateway wraps the OpenAI Chat Completions API behind the generic
// model.Gateway interface.
type Gateway struct {
	client *openai.Client
	opts   Options
}

// NewGateway creates a new OpenAI gateway using the official client.
func NewGateway(optFns ...func(o *Options)) *Gateway {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := openai.NewClient(clientOpts...)
	return &Gateway{client: &client, opts: opts}
}

// NewGatewayFromClient creates a new OpenAI gateway from an existing client.
func NewGatewayFromClient(client *openai.Client, optFns ...func(o *Options)) *Gateway {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Gateway{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.4,
		MaxCompletionTokens: 8000,
	}
}

// Stream implements model.Gateway. It adapts OpenAI Chat Completion chunks
// (with function/tool calling) into model.Fragment events. Tool-call deltas
// are forwarded raw; accumulation happens downstream.
func (g *Gateway) Stream(ctx context.Context, req model.Request) (<-chan model.Fragment, <-chan error) {
	out := make(chan model.Fragment, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := g.buildParams(req)

		stream := g.client.Chat.Completions.NewStreaming(ctx, params)
		for stream.Next() {
			ck := stream.Current()
			for _, ch := range ck.Choices {
				if ch.Delta.Content != "" {
					if !emit(ctx, out, model.ContentFragment(ch.Delta.Content)) {
						errCh <- ctx.Err()
						return
					}
				}
				for _, tc := range ch.Delta.ToolCalls {
					frag := model.ToolCallFragment(tc.Index, tc.ID, tc.Function.Name, tc.Function.Arguments)
					if !emit(ctx, out, frag) {
						errCh <- ctx.Err()
						return
					}
				}
				if ch.FinishReason != "" {
					if !emit(ctx, out, model.CompletionFragment(ch.FinishReason)) {
						errCh <- ctx.Err()
						return
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- &core.GatewayError{Provider: "openai", Err: err}
		}
	}()

	return out, errCh
}

func emit(ctx context.Context, out chan<- model.Fragment, frag model.Fragment) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- frag:
		return true
	}
}

// buildParams assembles the OpenAI request parameters including tool
// definitions and the tool choice constraint.
func (g *Gateway) buildParams(req model.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req),
		Model:               g.opts.Model,
		Temperature:         openai.Float(g.opts.Temperature),
		MaxCompletionTokens: openai.Int(g.opts.MaxCompletionTokens),
	}

	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
		for i, tdef := range req.Tools {
			tools[i] = openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        tdef.Name,
					Description: openai.String(tdef.Description),
					Parameters:  tdef.Parameters,
				},
			}
		}
		params.Tools = tools
	}

	switch req.Choice.Mode {
	case model.ToolChoiceForced:
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Type: "function",
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{
					Name: req.Choice.Tool,
				},
			},
		}
	case model.ToolChoiceRequired:
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String("required"),
		}
	}

	return params
}

// buildMessages converts the normalized conversation into OpenAI chat
// messages. Instructions become the leading system message unless the
// conversation already starts with one.
func buildMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion

	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case core.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case core.RoleAssistant:
			if !msg.HasToolCalls() {
				messages = append(messages, openai.AssistantMessage(msg.Content))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, len(msg.ToolCalls))
			for i, tc := range msg.ToolCalls {
				toolCalls[i] = openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				}
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: toolCalls,
				},
			})
		case core.RoleTool:
			messages = append(messages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			if msg.Content != "" {
				messages = append(messages, openai.UserMessage(msg.Content))
			}
		}
	}

	return messages
}

// Info returns metadata describing this OpenAI gateway implementation.
func (g *Gateway) Info() model.Info {
	return model.Info{
		Name:          g.opts.Model,
		Provider:      "openai",
		SupportsTools: true,
	}
}
