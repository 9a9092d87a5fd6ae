package coordinator

import (
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/grpc/encoding"
)

// CodecName gRPC content-subtype，请求头为 application/grpc+msgpack
const CodecName = "msgpack"

// msgpackCodec 协调者服务的 gRPC 编解码器。按 content-subtype 注册而不是
// 强制替换服务端编解码器，同一个 grpc.Server 上的健康检查仍使用 protobuf。
type msgpackCodec struct{}

func (msgpackCodec) Marshal(v any) ([]byte, error) { return msgpack.Marshal(v) }

func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

func (msgpackCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(msgpackCodec{})
}
