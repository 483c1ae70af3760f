package grpcclient

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/protobuf/types/descriptorpb"
)

// DefaultChatProto describes the bidirectional chat service used when no
// proto file is configured.
const DefaultChatProto = `syntax = "proto3";

package chat;

message ChatMessage {
  string sender = 1;
  string message = 2;
  string timestamp = 3;
}

service ChatService {
  rpc BidiChat(stream ChatMessage) returns (stream ChatMessage);
}
`

// Defaults for the embedded schema.
const (
	DefaultService = "chat.ChatService"
	DefaultMethod  = "BidiChat"
)

// ChatSchema is a resolved bidirectional streaming method whose messages
// carry sender, message and timestamp fields.
type ChatSchema struct {
	method     *desc.MethodDescriptor
	fullMethod string
}

// LoadChatSchema parses protoFile, or the embedded schema when protoFile is
// empty, and resolves service/method.
func LoadChatSchema(protoFile, service, method string) (*ChatSchema, error) {
	if strings.TrimSpace(service) == "" {
		service = DefaultService
	}
	if strings.TrimSpace(method) == "" {
		method = DefaultMethod
	}

	var files []*desc.FileDescriptor
	var err error
	if path := strings.TrimSpace(protoFile); path != "" {
		parser := protoparse.Parser{ImportPaths: []string{filepath.Dir(path)}}
		files, err = parser.ParseFiles(filepath.Base(path))
	} else {
		parser := protoparse.Parser{
			Accessor: protoparse.FileContentsFromMap(map[string]string{"chat.proto": DefaultChatProto}),
		}
		files, err = parser.ParseFiles("chat.proto")
	}
	if err != nil {
		return nil, fmt.Errorf("parse chat proto: %w", err)
	}

	for _, file := range files {
		for _, svc := range file.GetServices() {
			if !matchesServiceName(svc, service) {
				continue
			}
			md := svc.FindMethodByName(method)
			if md == nil {
				continue
			}
			if !md.IsClientStreaming() || !md.IsServerStreaming() {
				return nil, fmt.Errorf("method %s is not bidirectional streaming", md.GetFullyQualifiedName())
			}
			return &ChatSchema{
				method:     md,
				fullMethod: "/" + svc.GetFullyQualifiedName() + "/" + md.GetName(),
			}, nil
		}
	}
	return nil, fmt.Errorf("method %s not found in service %s", method, service)
}

func matchesServiceName(svc *desc.ServiceDescriptor, target string) bool {
	if svc.GetFullyQualifiedName() == target {
		return true
	}
	return svc.GetName() == target || strings.HasSuffix(target, "."+svc.GetName())
}

// FullMethod returns "/package.Service/Method".
func (s *ChatSchema) FullMethod() string { return s.fullMethod }

// NewOutbound builds a request message. The timestamp field may be a string
// (RFC 3339) or an integer (unix milliseconds); other fields are optional.
func (s *ChatSchema) NewOutbound(sender, message string, at time.Time) (*dynamic.Message, error) {
	msg := dynamic.NewMessage(s.method.GetInputType())
	if err := setIfPresent(msg, "sender", sender); err != nil {
		return nil, err
	}
	if err := setIfPresent(msg, "message", message); err != nil {
		return nil, err
	}
	if fd := msg.GetMessageDescriptor().FindFieldByName("timestamp"); fd != nil {
		var v any = at.UTC().Format(time.RFC3339Nano)
		switch fd.GetType() {
		case descriptorpb.FieldDescriptorProto_TYPE_INT64, descriptorpb.FieldDescriptorProto_TYPE_SINT64:
			v = at.UnixMilli()
		case descriptorpb.FieldDescriptorProto_TYPE_STRING:
		default:
			v = nil
		}
		if v != nil {
			if err := msg.TrySetFieldByName("timestamp", v); err != nil {
				return nil, err
			}
		}
	}
	return msg, nil
}

// NewInbound returns an empty response message.
func (s *ChatSchema) NewInbound() *dynamic.Message {
	return dynamic.NewMessage(s.method.GetOutputType())
}

func setIfPresent(msg *dynamic.Message, field, value string) error {
	if msg.GetMessageDescriptor().FindFieldByName(field) == nil {
		return nil
	}
	return msg.TrySetFieldByName(field, value)
}

func stringField(msg *dynamic.Message, field string) string {
	if msg.GetMessageDescriptor().FindFieldByName(field) == nil {
		return ""
	}
	v, err := msg.TryGetFieldByName(field)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
