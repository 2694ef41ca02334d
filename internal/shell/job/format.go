package job

import "fmt"

// StatusLine renders the "jobs" listing / status-change line for p, e.g.
// "[1]   Running         (sleep 10)\n". The status field is padded so the
// pipeline text column lines up across Running, Stopped, and Done lines.
func (p *Pipeline) StatusLine() string {
	return fmt.Sprintf("[%d]   %-16s(%s)\n", p.JID, p.Status(), p.Text())
}

// LaunchLine renders the line printed when a pipeline is launched in the
// background: "[1] 4821\n".
func LaunchLine(jid, pid int) string {
	return fmt.Sprintf("[%d] %d\n", jid, pid)
}

// ForegroundLine renders the line printed when a pipeline is brought to the
// foreground: "(sleep 10)\n".
func ForegroundLine(text string) string {
	return fmt.Sprintf("(%s)\n", text)
}

// BackgroundResumeLine renders the line printed when a pipeline is resumed
// in the background: "[1] (sleep 10)\n".
func BackgroundResumeLine(jid int, text string) string {
	return fmt.Sprintf("[%d] (%s)\n", jid, text)
}

// NoSuchJobLine renders the missing-job diagnostic, newline-terminated so
// it cannot interleave with the next prompt.
func NoSuchJobLine(jid int) string {
	return fmt.Sprintf("No job with job id %d found\n", jid)
}
