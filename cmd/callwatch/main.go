// callwatch records, audits and gates the outbound HTTP calls of AI agents.
package main

import "github.com/ppiankov/callwatch/internal/cli"

func main() {
	cli.Execute()
}
