package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/scttfrdmn/toolplan/toolplan"
)

// BedrockConverser is the part of *bedrockruntime.Client the adapter uses.
type BedrockConverser interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockConfig configures the Bedrock adapter. Empty credential fields
// use the default AWS credential chain.
type BedrockConfig struct {
	ModelID string
	Region  string
	Profile string

	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// EndpointURL overrides the service endpoint.
	EndpointURL string
}

// Defaults for BedrockConfig.
const (
	DefaultBedrockModel     = "anthropic.claude-3-5-haiku-20241022-v1:0"
	DefaultBedrockRegion    = "us-east-1"
	defaultBedrockMaxTokens = 4096
)

// BedrockLLM completes through the Bedrock Converse API.
type BedrockLLM struct {
	client  BedrockConverser
	modelID string
}

// NewBedrockLLM loads AWS configuration and creates the adapter.
func NewBedrockLLM(ctx context.Context, cfg BedrockConfig) (*BedrockLLM, error) {
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultBedrockModel
	}
	if cfg.Region == "" {
		cfg.Region = DefaultBedrockRegion
	}

	configOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.Profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOpts []func(*bedrockruntime.Options)
	if cfg.EndpointURL != "" {
		clientOpts = append(clientOpts, func(o *bedrockruntime.Options) {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		})
	}
	return NewBedrockLLMWithClient(bedrockruntime.NewFromConfig(awsConfig, clientOpts...), cfg.ModelID), nil
}

// NewBedrockLLMWithClient wraps an existing client.
func NewBedrockLLMWithClient(client BedrockConverser, modelID string) *BedrockLLM {
	if modelID == "" {
		modelID = DefaultBedrockModel
	}
	return &BedrockLLM{client: client, modelID: modelID}
}

// Model returns the model ID.
func (b *BedrockLLM) Model() string {
	return b.modelID
}

// Complete calls Converse. Bedrock has no JSON mode; with JSONMode set an
// instruction to answer in JSON is appended to the system prompt.
func (b *BedrockLLM) Complete(ctx context.Context, messages []*toolplan.Message, opts ...CallOption) (*toolplan.Message, error) {
	options := BuildCallOptions(opts...)

	bedrockMessages, system := convertBedrockMessages(messages)
	if options.JSONMode {
		system = append(system, &types.SystemContentBlockMemberText{
			Value: "Respond with a single JSON object and nothing else.",
		})
	}

	maxTokens := defaultBedrockMaxTokens
	if options.MaxTokens != nil {
		maxTokens = *options.MaxTokens
	}
	inference := &types.InferenceConfiguration{
		MaxTokens: aws.Int32(int32(maxTokens)),
	}
	if options.Temperature != nil {
		inference.Temperature = aws.Float32(float32(*options.Temperature))
	}
	if options.TopP != nil {
		inference.TopP = aws.Float32(float32(*options.TopP))
	}
	if seq := options.stopSequences(); len(seq) > 0 {
		inference.StopSequences = seq
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(b.modelID),
		Messages:        bedrockMessages,
		InferenceConfig: inference,
	}
	if len(system) > 0 {
		input.System = system
	}

	output, err := b.client.Converse(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bedrock api error: %w", err)
	}

	var sb strings.Builder
	if out, ok := output.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range out.Value.Content {
			if text, ok := block.(*types.ContentBlockMemberText); ok {
				sb.WriteString(text.Value)
			}
		}
	}

	msg, err := newResponse(b.modelID, sb.String())
	if err != nil {
		return nil, err
	}
	if output.Usage != nil {
		msg.WithMetadata("usage", usage(
			int(aws.ToInt32(output.Usage.InputTokens)),
			int(aws.ToInt32(output.Usage.OutputTokens)),
			int(aws.ToInt32(output.Usage.TotalTokens)),
		))
	}
	if output.StopReason != "" {
		msg.WithMetadata("stop_reason", string(output.StopReason))
	}
	return msg, nil
}

// convertBedrockMessages maps system messages to system blocks and merges
// consecutive turns of the same role, which Converse rejects.
func convertBedrockMessages(messages []*toolplan.Message) ([]types.Message, []types.SystemContentBlock) {
	var out []types.Message
	var system []types.SystemContentBlock

	for _, msg := range messages {
		if msg.Role == toolplan.RoleSystem {
			system = append(system, &types.SystemContentBlockMemberText{Value: msg.Content})
			continue
		}
		role := types.ConversationRoleUser
		if msg.Role == toolplan.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		block := &types.ContentBlockMemberText{Value: msg.Content}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, block)
			continue
		}
		out = append(out, types.Message{
			Role:    role,
			Content: []types.ContentBlock{block},
		})
	}
	return out, system
}

// Unwrap returns the underlying client.
func (b *BedrockLLM) Unwrap() interface{} {
	return b.client
}
