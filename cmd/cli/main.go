package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"agent-platform/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}
	cmd := os.Args[1]
	args := os.Args[2:]
	switch cmd {
	case "version":
		fmt.Println("agent-platform cli 0.1.0")
	case "health":
		runHealth()
	case "config":
		runConfig()
	case "server":
		if len(args) > 0 && args[0] == "start" {
			runServerStart()
		} else {
			fmt.Fprintf(os.Stderr, "Usage: agentctl server start\n")
			os.Exit(1)
		}
	case "tools":
		runTools()
	case "ask":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "Usage: agentctl ask <agent> <query...>\n")
			os.Exit(1)
		}
		runAsk(args[0], strings.Join(args[1:], " "))
	case "chat":
		runChat(args)
	case "session":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: agentctl session <session_id>\n")
			os.Exit(1)
		}
		runSession(args[0])
	case "trace":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: agentctl trace <session_id>\n")
			os.Exit(1)
		}
		runTrace(args[0])
	case "tool":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: agentctl tool <name> [json-args]\n")
			os.Exit(1)
		}
		runTool(args)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: agentctl <command> [args]")
	fmt.Println("  version              - 显示版本")
	fmt.Println("  health               - 健康检查")
	fmt.Println("  config               - 显示配置概要")
	fmt.Println("  server start         - 启动 API 服务（go run ./cmd/api）")
	fmt.Println("  tools                - 列出注册的工具")
	fmt.Println("  ask <agent> <query>  - 执行一次查询")
	fmt.Println("  chat [agent]         - 交互式多轮对话（默认 agent：assistant）")
	fmt.Println("  session <session_id> - 输出会话记录")
	fmt.Println("  trace <session_id>   - 输出会话的按步 trace")
	fmt.Println("  tool <name> [args]   - 直接调度工具（JSON-RPC tools/call）")
}

func runHealth() {
	out, err := getHealth()
	if err != nil {
		fmt.Fprintf(os.Stderr, "健康检查失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runConfig() {
	cfg, err := config.LoadAPIConfigWithModel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if cfg != nil {
		fmt.Printf("api.port=%d\n", cfg.API.Port)
		fmt.Printf("api.host=%s\n", cfg.API.Host)
		fmt.Printf("agent.max_steps=%d\n", cfg.Agent.MaxSteps)
		fmt.Printf("model.defaults.llm=%s\n", cfg.Model.Defaults.LLM)
	}
}

func runServerStart() {
	c := exec.Command("go", "run", "./cmd/api")
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	c.Dir = "."
	if err := c.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "server start: %v\n", err)
		os.Exit(1)
	}
}

func runTools() {
	tools, err := listTools()
	if err != nil {
		fmt.Fprintf(os.Stderr, "列出工具失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(tools))
}

func runAsk(agent, query string) {
	out, err := askAgent(agent, query, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "查询失败: %v\n", err)
		os.Exit(1)
	}
	if out.Error != nil {
		fmt.Fprintf(os.Stderr, "agent 执行失败: %v\n", out.Error["message"])
		if out.Metadata != nil {
			fmt.Fprintln(os.Stderr, prettyJSON(out.Metadata))
		}
		os.Exit(1)
	}
	fmt.Println(out.Result)
	if out.Metadata != nil {
		fmt.Fprintf(os.Stderr, "session=%v steps=%v state=%v\n",
			out.Metadata["session_id"], out.Metadata["steps"], out.Metadata["state"])
	}
}

func runChat(args []string) {
	agent := "assistant"
	if len(args) > 0 {
		agent = args[0]
	}
	sessionID := ""
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		msg := strings.TrimSpace(line)
		if msg == "" {
			continue
		}
		if msg == "exit" || msg == "quit" {
			break
		}
		out, err := askAgent(agent, msg, sessionID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "发送失败: %v\n", err)
			continue
		}
		if out.Metadata != nil {
			if id, ok := out.Metadata["session_id"].(string); ok {
				sessionID = id
			}
		}
		if out.Error != nil {
			fmt.Fprintf(os.Stderr, "执行失败: %v\n", out.Error["message"])
			continue
		}
		fmt.Println(out.Result)
	}
}

func runSession(sessionID string) {
	out, err := getSession(sessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "获取会话失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runTrace(sessionID string) {
	out, err := getSessionTrace(sessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "获取 Trace 失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runTool(args []string) {
	name := args[0]
	toolArgs := map[string]interface{}{}
	if len(args) > 1 {
		if err := json.Unmarshal([]byte(args[1]), &toolArgs); err != nil {
			fmt.Fprintf(os.Stderr, "参数须为 JSON 对象: %v\n", err)
			os.Exit(1)
		}
	}
	out, err := callTool(name, toolArgs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "调度失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}
