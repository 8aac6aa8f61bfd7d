package banner

import (
	"fmt"
)

const banner = `
 ██████╗██╗  ██╗ █████╗ ████████╗███████╗██████╗ ██╗  ██╗███████╗██████╗ ███████╗
██╔════╝██║  ██║██╔══██╗╚══██╔══╝██╔════╝██╔══██╗██║  ██║██╔════╝██╔══██╗██╔════╝
██║     ███████║███████║   ██║   ███████╗██████╔╝███████║█████╗  ██████╔╝█████╗
██║     ██╔══██║██╔══██║   ██║   ╚════██║██╔═══╝ ██╔══██║██╔══╝  ██╔══██╗██╔══╝
╚██████╗██║  ██║██║  ██║   ██║   ███████║██║     ██║  ██║███████╗██║  ██║███████╗
 ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝   ╚══════╝╚═╝     ╚═╝  ╚═╝╚══════╝╚═╝  ╚═╝╚══════╝
`

// Print shows startup context on stdout. Structured logs carry the same
// facts; this is for whoever started the process in a terminal.
func Print(addr, dbPath, source, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	if source != "" {
		fmt.Printf("Config:   %s\n", source)
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /v1/messages                  - Post a message")
	fmt.Println("GET  /v1/messages                  - List the feed")
	fmt.Println("GET  /v1/messages/{id}/thread      - Message plus its replies")
	fmt.Println("POST /v1/polls                     - Create a poll")
	fmt.Println("POST /v1/auth                      - Join with a display name")
	fmt.Println("GET  /metrics                      - Prometheus metrics")
	fmt.Println("GET  /docs                         - API documentation")
	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl -X POST 'http://localhost%s/v1/messages' -H 'X-Identity: alice' -d '{\"name\":\"alice\",\"message\":\"hello\"}'\n", addr)
	fmt.Printf("curl 'http://localhost%s/v1/messages'\n", addr)
}
