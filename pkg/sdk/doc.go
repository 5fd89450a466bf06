// Package sdk provides a Go client for the docchat question-answering API.
//
// # Synchronous answers
//
//	client := sdk.New("http://localhost:8080", sdk.WithAPIKey("secret"))
//	answer, err := client.AnswerOnce(ctx, "연차는 며칠인가요?")
//	fmt.Println(answer.Answer)
//	for _, p := range answer.Passages {
//	    fmt.Println(" -", p.DocTitle, p.Score)
//	}
//
// # Streaming answers
//
//	err := client.Answer(ctx, "연차는 며칠인가요?", func(ev sdk.Event) {
//	    switch ev.Type {
//	    case sdk.EventToken:
//	        fmt.Print(ev.Token)
//	    case sdk.EventFinal:
//	        fmt.Println("\nsources:", len(ev.Final.Passages))
//	    }
//	})
//
// Progress stages, answer tokens, and the terminal payload arrive as
// server-sent events; the callback is invoked in arrival order.
package sdk
