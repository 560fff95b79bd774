// Package anthropic provides a model.Gateway implementation for the Anthropic
// Messages API, mapping streamed content and tool_use blocks onto the shared
// fragment protocol.
package anthropic

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/sgrlabs/sgragent/core"
	"github.com/sgrlabs/sgragent/model"
)

// Options configures the Anthropic gateway adapter (temperature, model id,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Gateway wraps the Anthropic Messages API behind the generic model.Gateway
// interface.
type Gateway struct {
	client *anthropic.Client
	opts   Options
}

// NewGateway creates a new Anthropic gateway using the official client.
func NewGateway(optFns ...func(o *Options)) *Gateway {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)
	return &Gateway{client: &client, opts: opts}
}

// NewGatewayFromClient creates a new Anthropic gateway from an existing client.
func NewGatewayFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Gateway {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Gateway{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.4,
		MaxTokens:   8000,
	}
}

// Stream implements model.Gateway. Content block deltas become content
// fragments; tool_use blocks become tool-call fragments keyed by the block
// index, with input JSON forwarded incrementally.
func (g *Gateway) Stream(ctx context.Context, req model.Request) (<-chan model.Fragment, <-chan error) {
	out := make(chan model.Fragment, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := g.buildParams(req)

		stream := g.client.Messages.NewStreaming(ctx, params)
		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				if block, ok := ev.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
					frag := model.ToolCallFragment(ev.Index, block.ID, block.Name, "")
					if !emit(ctx, out, frag) {
						errCh <- ctx.Err()
						return
					}
				}
			case anthropic.ContentBlockDeltaEvent:
				switch delta := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if delta.Text != "" {
						if !emit(ctx, out, model.ContentFragment(delta.Text)) {
							errCh <- ctx.Err()
							return
						}
					}
				case anthropic.InputJSONDelta:
					if delta.PartialJSON != "" {
						frag := model.ToolCallFragment(ev.Index, "", "", delta.PartialJSON)
						if !emit(ctx, out, frag) {
							errCh <- ctx.Err()
							return
						}
					}
				}
			case anthropic.MessageDeltaEvent:
				if ev.Delta.StopReason != "" {
					if !emit(ctx, out, model.CompletionFragment(mapStopReason(string(ev.Delta.StopReason)))) {
						errCh <- ctx.Err()
						return
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- &core.GatewayError{Provider: "anthropic", Err: err}
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

// mapStopReason normalizes Anthropic stop reasons onto the OpenAI-style
// finish reasons the rest of the runtime keys on.
func mapStopReason(reason string) string {
	switch reason {
	case "tool_use":
		return "tool_calls"
	case "max_tokens":
		return "length"
	case "end_turn", "stop_sequence":
		return "stop"
	default:
		return reason
	}
}

// buildParams assembles the Anthropic request including tools and the tool
// choice constraint.
func (g *Gateway) buildParams(req model.Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:       g.opts.Model,
		Messages:    buildMessages(req.Messages),
		MaxTokens:   g.opts.MaxTokens,
		Temperature: anthropic.Float(g.opts.Temperature),
	}

	system := systemBlocks(req)
	if len(system) > 0 {
		params.System = system
	}

	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	switch req.Choice.Mode {
	case model.ToolChoiceForced:
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: req.Choice.Tool},
		}
	case model.ToolChoiceRequired:
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfAny: &anthropic.ToolChoiceAnyParam{},
		}
	}

	return params
}

// systemBlocks collects the request instructions plus any system messages in
// the conversation; Anthropic carries these outside the message list.
func systemBlocks(req model.Request) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	if req.Instructions != "" {
		blocks = append(blocks, anthropic.TextBlockParam{Text: req.Instructions})
	}
	for _, msg := range req.Messages {
		if msg.Role == core.RoleSystem && msg.Content != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: msg.Content})
		}
	}
	return blocks
}

// buildMessages converts the normalized conversation to the Anthropic message
// format. Tool results become tool_result blocks inside user messages, per
// the Messages API convention.
func buildMessages(msgs []core.Message) []anthropic.MessageParam {
	var messages []anthropic.MessageParam

	for _, msg := range msgs {
		switch msg.Role {
		case core.RoleSystem:
			continue // handled via systemBlocks
		case core.RoleUser:
			if msg.Content != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			}
		case core.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				content = append(content, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input any
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
						input = tc.Arguments
					}
				}
				content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(content) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(content...))
			}
		case core.RoleTool:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		default:
			if msg.Content != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			}
		}
	}

	return messages
}

// buildTools converts tool definitions to the Anthropic tool format.
func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	anthropicTools := make([]anthropic.ToolUnionParam, len(tools))

	for i, tdef := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if tdef.Parameters != nil {
			if properties, exists := tdef.Parameters["properties"]; exists {
				inputSchema.Properties = properties
			}
			if required, exists := tdef.Parameters["required"]; exists {
				switch req := required.(type) {
				case []string:
					inputSchema.Required = req
				case []any:
					var reqStrings []string
					for _, r := range req {
						if s, ok := r.(string); ok {
							reqStrings = append(reqStrings, s)
						}
					}
					inputSchema.Required = reqStrings
				}
			}
		}

		anthropicTools[i] = anthropic.ToolUnionParamOfTool(inputSchema, tdef.Name)
	}

	return anthropicTools
}

// Info returns metadata describing this Anthropic gateway implementation.
func (g *Gateway) Info() model.Info {
	return model.Info{
		Name:          string(g.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}
