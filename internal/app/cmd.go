package app

import (
	"fmt"
	"strings"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はゲストアイデアの定期削除ワーカーとして起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// commands はサブコマンドと説明の一覧。Usageの表示順を兼ねる。
var commands = []struct {
	cmd         Command
	description string
}{
	{CommandServe, "HTTP APIサーバーを起動する（デフォルト）"},
	{CommandWorker, "保持期間を過ぎたゲストアイデアを毎日削除する"},
	{CommandMigrate, "未適用のデータベースマイグレーションを適用する"},
	{CommandHealthcheck, "ローカルのAPIサーバーの/healthを確認する"},
}

// LookupCommand はコマンドライン引数の先頭からサブコマンドを解析する。
// 2番目の戻り値は引数がサポート対象のコマンドと一致したかを示す。
// 引数が空の場合はCommandServeとtrueを返す。
func LookupCommand(args []string) (Command, bool) {
	if len(args) == 0 {
		return CommandServe, true
	}
	for _, c := range commands {
		if string(c.cmd) == args[0] {
			return c.cmd, true
		}
	}
	return CommandServe, false
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	cmd, _ := LookupCommand(args)
	return cmd
}

// Usage はサブコマンドの一覧を返す。
func Usage() string {
	var b strings.Builder
	b.WriteString("usage: ideaforge <command>\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(&b, "  %-12s %s\n", c.cmd, c.description)
	}
	return b.String()
}
