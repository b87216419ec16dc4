// Package client provides a Go SDK for the agent task orchestrator API.
//
// # Basic usage
//
//	c, err := client.New("http://localhost:8080")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	t, err := c.CreateTask(ctx, client.CreateTaskRequest{
//	    Type:        client.TaskTypeResearch,
//	    Title:       "Summarize Q3 churn",
//	    Description: "Pull churn metrics and summarize root causes",
//	})
//
// # Configuration
//
// The client supports functional options:
//
//	c, err := client.New("http://localhost:8080",
//	    client.WithAPIKey("your-api-key"),
//	    client.WithTimeout(30*time.Second),
//	)
package client
