package tui

import "strings"

const helpText = `Commands:
  /upload <file.pdf> [more.pdf ...]  index PDFs and answer only from them
  /clear                             forget the documents, back to full knowledge
  /reset                             forget the chat history, keep the documents
  /help                              show this help
  /quit                              leave`

type command struct {
	name string
	args []string
}

// parseCommand recognises "/name arg..." lines. Anything else is a message.
func parseCommand(line string) (command, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") || strings.HasPrefix(line, "//") {
		return command{}, false
	}
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return command{}, false
	}
	return command{name: strings.ToLower(fields[0]), args: fields[1:]}, true
}
