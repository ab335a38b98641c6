package api

import (
	"context"
	"encoding/json"
	"errors"

	"catalog-rules-service/internal/engine"
	"catalog-rules-service/internal/rule"
	"catalog-rules-service/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	RuleServiceName     = "catalogrules.v1.RuleService"
	ruleServiceFile     = "catalogrules/v1/rule_service.proto"
	applyRuleFullMethod = "/" + RuleServiceName + "/ApplyRule"
)

// Registers the service's file descriptor for server reflection.
func init() {
	fd, err := protodesc.NewFile(ruleServiceFileDescriptor(), protoregistry.GlobalFiles)
	if err != nil {
		panic(err)
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic(err)
	}
}

func ruleServiceFileDescriptor() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String(ruleServiceFile),
		Package:    proto.String("catalogrules.v1"),
		Dependency: []string{"google/protobuf/struct.proto"},
		Syntax:     proto.String("proto3"),
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("RuleService"),
			Method: []*descriptorpb.MethodDescriptorProto{{
				Name:       proto.String("ApplyRule"),
				InputType:  proto.String(".google.protobuf.Struct"),
				OutputType: proto.String(".google.protobuf.Struct"),
			}},
		}},
	}
}

// RuleServiceServer is the server API for the rule service. Requests and
// responses are google.protobuf.Struct values with the same shape as the
// HTTP rule endpoint's JSON bodies.
type RuleServiceServer interface {
	ApplyRule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RuleServiceDesc describes the rule service for grpc.Server.RegisterService.
var RuleServiceDesc = grpc.ServiceDesc{
	ServiceName: RuleServiceName,
	HandlerType: (*RuleServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ApplyRule",
			Handler:    applyRuleHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: ruleServiceFile,
}

// RegisterRuleServiceServer registers srv on s.
func RegisterRuleServiceServer(s grpc.ServiceRegistrar, srv RuleServiceServer) {
	s.RegisterService(&RuleServiceDesc, srv)
}

func applyRuleHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RuleServiceServer).ApplyRule(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: applyRuleFullMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RuleServiceServer).ApplyRule(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RuleServiceClient is the client API for the rule service.
type RuleServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewRuleServiceClient creates a client on an existing connection.
func NewRuleServiceClient(cc grpc.ClientConnInterface) *RuleServiceClient {
	return &RuleServiceClient{cc: cc}
}

// ApplyRule calls RuleService.ApplyRule.
func (c *RuleServiceClient) ApplyRule(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, applyRuleFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GRPCHandler implements RuleServiceServer.
type GRPCHandler struct {
	runner   RuleRunner
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewGRPCHandler creates a new GRPCHandler.
func NewGRPCHandler(runner RuleRunner, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		runner:   runner,
		validate: validator.New(),
		logger:   logger.With().Str("component", "grpc").Logger(),
	}
}

// --- Helper: Error Mapping ---
func mapRunErrorToGrpcStatus(err error) error {
	switch {
	case errors.Is(err, rule.ErrUnsupportedActionKind),
		errors.Is(err, rule.ErrInvalidAction),
		errors.Is(err, engine.ErrBatchTooLarge):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, store.ErrProductNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, rule.ErrCategoryNotFound),
		errors.Is(err, store.ErrCategoryNotFound):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, "failed to apply rule")
	}
}

// ApplyRule decodes the request struct, runs the rule and returns the run
// result as a struct.
func (s *GRPCHandler) ApplyRule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw, err := protojson.Marshal(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	var input RuleApplyInput
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	if err := s.validate.Struct(input); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "validation failed: %v", err)
	}

	ruleToApply, err := rule.DecodeRule(input.Rule.Code, input.Rule.Actions)
	if err != nil {
		return nil, mapRunErrorToGrpcStatus(err)
	}

	result, err := s.runner.Run(ctx, engine.RunRequest{
		ProductIDs: input.ProductIDs,
		Rule:       ruleToApply,
		DryRun:     input.DryRun,
	})
	if err != nil {
		st := mapRunErrorToGrpcStatus(err)
		if status.Code(st) == codes.Internal {
			s.logger.Error().Err(err).Str("rule", input.Rule.Code).Msg("ApplyRule failed")
		}
		return nil, st
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode run result")
		return nil, status.Error(codes.Internal, "failed to encode run result")
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(encoded, out); err != nil {
		s.logger.Error().Err(err).Msg("failed to convert run result")
		return nil, status.Error(codes.Internal, "failed to encode run result")
	}
	return out, nil
}
