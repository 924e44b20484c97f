package userservice

import (
	"context"
	"net"
	"testing"
	"time"

	"contract-rpc/client"
	"contract-rpc/codec"
	"contract-rpc/server"
)

func setupBench(b *testing.B, ct codec.CodecType) UserService {
	reg := server.NewRegistry()
	if err := reg.Register(Contract.Descriptor, NewImpl(NewMemoryStore(), nil)); err != nil {
		b.Fatal(err)
	}
	srv := server.NewServer(reg)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		b.Fatal(err)
	}
	go srv.Serve(ln)
	b.Cleanup(func() { srv.Shutdown(3 * time.Second) })

	c, err := client.Dial(context.Background(), "tcp", ln.Addr().String(), client.WithCodec(ct))
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { c.Close() })
	return client.For(c, Contract)
}

// Single goroutine, one call at a time.
func BenchmarkSerialCall(b *testing.B) {
	users := setupBench(b, codec.CodecTypeJSON)
	ctx := context.Background()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := users.GetByID(ctx, 1); err != nil {
			b.Fatal(err)
		}
	}
}

// Many goroutines multiplexed over one connection.
func BenchmarkConcurrentCall(b *testing.B) {
	for _, ct := range []codec.CodecType{codec.CodecTypeJSON, codec.CodecTypeBinary} {
		b.Run(ct.String(), func(b *testing.B) {
			users := setupBench(b, ct)
			ctx := context.Background()
			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					if _, err := users.GetByID(ctx, 2); err != nil {
						b.Error(err)
						return
					}
				}
			})
		})
	}
}
