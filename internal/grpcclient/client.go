package grpcclient

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/quality-check/internal/classifier"
	"github.com/example/quality-check/internal/logging"
)

// DialClassifier connects to a gRPC classification service. The service is
// expected to expose method as a unary call taking google.protobuf.BytesValue
// (the image) and returning google.protobuf.StringValue (the prediction text).
func DialClassifier(ctx context.Context, addr, method string, logger *zap.Logger, opts ...grpc.DialOption) (classifier.Client, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)
	conn, err := grpc.DialContext(dialCtx, addr, opts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_classifier", "", err)
		logger.Error("failed to dial classifier", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return &grpcClassifier{conn: conn, method: method, logger: logger.Named("classifier_grpc")}, conn, nil
}

type grpcClassifier struct {
	conn   grpc.ClientConnInterface
	method string
	logger *zap.Logger
}

func (g *grpcClassifier) Invoke(ctx context.Context, image []byte) (string, error) {
	out := &wrapperspb.StringValue{}
	if err := g.conn.Invoke(ctx, g.method, wrapperspb.Bytes(image), out); err != nil {
		wrapped := logging.NewOperationError("classifier.invoke", "", err)
		g.logger.Error("classifier call failed", zap.Error(wrapped), zap.String("method", g.method))
		return "", wrapped
	}
	return out.GetValue(), nil
}
