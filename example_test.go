package kt_test

import (
	"context"
	"fmt"

	"github.com/pior/kt"
	"github.com/pior/kt/internal/testutils"
)

func Example() {
	srv := testutils.NewServer()
	client := kt.New(srv.Pipe(), kt.Config{})
	defer client.Close()

	ctx := context.Background()

	xt, _ := kt.After(3600)
	if err := client.Set(ctx, []byte("user:123"), []byte("John"), xt); err != nil {
		panic(err)
	}

	value, found, err := client.Get(ctx, []byte("user:123"))
	if err != nil {
		panic(err)
	}
	fmt.Println(string(value), found)

	added, _ := client.Add(ctx, []byte("user:123"), []byte("Jane"), kt.NoExpiration)
	fmt.Println("added:", added)

	n, _ := client.Increment(ctx, []byte("visits"), 1, 0, kt.NoExpiration)
	fmt.Println("visits:", n)

	// Output:
	// John true
	// added: false
	// visits: 1
}

func ExampleClient_Submit() {
	srv := testutils.NewServer()
	client := kt.New(srv.Pipe(), kt.Config{})
	defer client.Close()

	ctx := context.Background()

	// requests are pipelined, responses complete operations in submission order
	var ops []*kt.Operation
	for _, key := range []string{"a", "b", "c"} {
		req := client.NewTextRequest(kt.KindSet)
		req.Text.AddString("key", key).AddString("value", key+key)

		op, err := client.Submit(ctx, req)
		if err != nil {
			panic(err)
		}
		ops = append(ops, op)
	}
	for _, op := range ops {
		resp, err := op.Wait(ctx)
		if err != nil {
			panic(err)
		}
		fmt.Println(resp.Text.Status)
	}

	result, _ := client.GetBulk(ctx, [][]byte{[]byte("a"), []byte("c")}, false)
	fmt.Println(result.Len())

	// Output:
	// 200
	// 200
	// 200
	// 2
}

func ExampleClient_Stats() {
	srv := testutils.NewServer()
	client := kt.New(srv.Pipe(), kt.Config{})
	defer client.Close()

	ctx := context.Background()

	_ = client.Set(ctx, []byte("user:123"), []byte("John"), kt.NoExpiration)
	_, _, _ = client.Get(ctx, []byte("user:123"))
	_, _, _ = client.Get(ctx, []byte("user:456")) // miss

	stats := client.Stats()
	fmt.Printf("gets=%d hits=%d sets=%d\n", stats.Gets, stats.GetHits, stats.Sets)

	// Output:
	// gets=2 hits=1 sets=1
}
