package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"time"

	"github.com/nextlevelbuilder/goaide/internal/config"
	"github.com/nextlevelbuilder/goaide/internal/workspace"
)

// Dangerous command patterns denied before execution. Commands run on
// the host inside the workspace files directory, so the deny list is
// the only guard. Sources: OWASP Agentic AI Top 10, MITRE ATT&CK,
// PayloadsAllTheThings.
var defaultDenyPatterns = []*regexp.Regexp{
	// ── Destructive file operations ──
	regexp.MustCompile(`\brm\s+-[rf]{1,2}\b`),
	regexp.MustCompile(`\brm\s+.*--recursive`),
	regexp.MustCompile(`\brm\s+.*--force`),
	regexp.MustCompile(`\bdel\s+/[fq]\b`),
	regexp.MustCompile(`\brmdir\s+/s\b`),
	regexp.MustCompile(`\b(mkfs|diskpart)\b|\bformat\s`),
	regexp.MustCompile(`\bdd\s+if=`),
	regexp.MustCompile(`>\s*/dev/sd[a-z]\b`),
	regexp.MustCompile(`\b(shutdown|reboot|poweroff)\b`),
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`), // fork bomb

	// ── Data exfiltration ──
	regexp.MustCompile(`\bcurl\b.*\|\s*(ba)?sh\b`),                                             // curl | sh
	regexp.MustCompile(`\bcurl\b.*(-d\b|-F\b|--data|--upload|--form|-T\b|-X\s*P(UT|OST|ATCH))`), // curl POST/PUT
	regexp.MustCompile(`\bwget\b.*-O\s*-\s*\|\s*(ba)?sh\b`),                                    // wget | sh
	regexp.MustCompile(`\bwget\b.*--post-(data|file)`),                                         // wget POST
	regexp.MustCompile(`\b(nslookup|dig|host)\b`),                                              // DNS exfiltration
	regexp.MustCompile(`/dev/tcp/`),                                                            // bash tcp redirect

	// ── Reverse shells ──
	regexp.MustCompile(`\b(nc|ncat|netcat)\b.*-[el]\b`),
	regexp.MustCompile(`\bsocat\b`),
	regexp.MustCompile(`\bopenssl\b.*s_client`),
	regexp.MustCompile(`\btelnet\b.*\d+`),
	regexp.MustCompile(`\bpython[23]?\b.*\bimport\s+(socket|http\.client|urllib|requests)\b`),
	regexp.MustCompile(`\bperl\b.*-e\s*.*\b[Ss]ocket\b`),
	regexp.MustCompile(`\bruby\b.*-e\s*.*\b(TCPSocket|Socket)\b`),
	regexp.MustCompile(`\bnode\b.*-e\s*.*\b(net\.connect|child_process)\b`),
	regexp.MustCompile(`\bawk\b.*/inet/`), // awk built-in networking
	regexp.MustCompile(`\bmkfifo\b`),      // named pipes for shell redirection

	// ── Dangerous eval / code injection ──
	regexp.MustCompile(`\beval\s*\$`),
	regexp.MustCompile(`\bbase64\s+-d\b.*\|\s*(ba)?sh\b`),

	// ── Privilege escalation ──
	regexp.MustCompile(`\bsudo\b`),
	regexp.MustCompile(`\bsu\s+-`),
	regexp.MustCompile(`\bnsenter\b`),
	regexp.MustCompile(`\bunshare\b`),
	regexp.MustCompile(`\b(mount|umount)\b`),
	regexp.MustCompile(`\b(capsh|setcap|getcap)\b`),

	// ── Dangerous path operations ──
	regexp.MustCompile(`\bchmod\s+[0-7]{3,4}\s+/`),
	regexp.MustCompile(`\bchown\b.*\s+/`),
	regexp.MustCompile(`\bchmod\b.*\+x.*/tmp/`), // make tmpfs executable
	regexp.MustCompile(`\bchmod\b.*\+x.*/var/tmp/`),
	regexp.MustCompile(`\bchmod\b.*\+x.*/dev/shm/`),

	// ── Environment variable injection ──
	regexp.MustCompile(`\bLD_PRELOAD\s*=`),
	regexp.MustCompile(`\bDYLD_INSERT_LIBRARIES\s*=`),
	regexp.MustCompile(`\bLD_LIBRARY_PATH\s*=`),
	regexp.MustCompile(`/etc/ld\.so\.preload`),
	regexp.MustCompile(`\bGIT_EXTERNAL_DIFF\s*=`), // git diff arbitrary code exec
	regexp.MustCompile(`\bGIT_DIFF_OPTS\s*=`),     // git diff behavior injection
	regexp.MustCompile(`\bBASH_ENV\s*=`),          // shell init injection
	regexp.MustCompile(`\bENV\s*=.*\bsh\b`),       // sh init injection

	// ── Container escape ──
	regexp.MustCompile(`/var/run/docker\.sock|docker\.(sock|socket)`),
	regexp.MustCompile(`/proc/sys/(kernel|fs|net)/`),      // proc writes
	regexp.MustCompile(`/sys/(kernel|fs|class|devices)/`), // sysfs manipulation

	// ── Crypto mining ──
	regexp.MustCompile(`\b(xmrig|cpuminer|minerd|cgminer|bfgminer|ethminer|nbminer|t-rex|phoenixminer|lolminer|gminer|claymore)\b`),
	regexp.MustCompile(`stratum\+tcp://|stratum\+ssl://`),

	// ── Filter bypass ──
	regexp.MustCompile(`\bsed\b.*['"]/e\b`),                              // sed /e command execution
	regexp.MustCompile(`\bsort\b.*--compress-program`),                   // sort arbitrary exec
	regexp.MustCompile(`\bgit\b.*(--upload-pack|--receive-pack|--exec)=`), // git exec flags
	regexp.MustCompile(`\b(rg|grep)\b.*--pre=`),                          // preprocessor execution
	regexp.MustCompile(`\bman\b.*--html=`),                               // man command injection
	regexp.MustCompile(`\bhistory\b.*-[saw]\b`),                          // history file injection
	regexp.MustCompile(`\$\{[^}]*@[PpEeAaKk]\}`),                         // ${var@P} parameter expansion

	// ── Network abuse / reconnaissance ──
	regexp.MustCompile(`\b(nmap|masscan|zmap|rustscan)\b`),
	regexp.MustCompile(`\b(ssh|scp|sftp)\b.*@`),                              // outbound SSH
	regexp.MustCompile(`\b(chisel|frp|ngrok|cloudflared|bore|localtunnel)\b`), // tunneling tools

	// ── Persistence ──
	regexp.MustCompile(`\bcrontab\b`),
	regexp.MustCompile(`>\s*~/?\.(bashrc|bash_profile|profile|zshrc)`), // shell RC injection
	regexp.MustCompile(`\btee\b.*\.(bashrc|bash_profile|profile|zshrc)`),

	// ── Process manipulation ──
	regexp.MustCompile(`\bkill\s+-9\s`),
	regexp.MustCompile(`\b(killall|pkill)\b`),

	// ── Environment variable dumping ──
	// Bare env/printenv/set/export dumps all vars including secrets (API keys, DSN, encryption keys).
	// 'env VAR=val cmd' (env with assignment before command) is still allowed.
	regexp.MustCompile(`^\s*env\s*$`),                                 // bare 'env'
	regexp.MustCompile(`^\s*env\s*\|`),                                // 'env | ...' (piped)
	regexp.MustCompile(`^\s*env\s*>\s`),                               // 'env > file'
	regexp.MustCompile(`\bprintenv\b`),                                // any printenv usage
	regexp.MustCompile(`^\s*(set|export\s+-p|declare\s+-x)\s*($|\|)`), // shell var dumps
	regexp.MustCompile(`\bcompgen\s+-e\b`),                            // bash env completion dump
}

const defaultExecTimeout = 60 * time.Second

// ExecTool executes shell commands inside the workspace files
// directory.
type ExecTool struct {
	router       *workspace.Router
	timeout      time.Duration
	denyPatterns []*regexp.Regexp
}

// NewExecTool builds the exec tool. Returns nil when the tool is
// disabled in config.
func NewExecTool(router *workspace.Router, cfg config.ExecToolConfig) *ExecTool {
	if !cfg.Enabled {
		return nil
	}
	timeout := defaultExecTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &ExecTool{
		router:       router,
		timeout:      timeout,
		denyPatterns: defaultDenyPatterns,
	}
}

func (t *ExecTool) Name() string        { return "exec" }
func (t *ExecTool) Description() string { return "Execute a shell command and return its output" }

// ExecuteTimeout reserves the configured command budget plus headroom
// for process startup and teardown.
func (t *ExecTool) ExecuteTimeout() time.Duration { return t.timeout + 5*time.Second }

func (t *ExecTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "The shell command to execute",
			},
			"working_dir": map[string]interface{}{
				"type":        "string",
				"description": "Optional working directory, relative to the workspace files root",
			},
		},
		"required": []string{"command"},
	}
}

func (t *ExecTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	command, _ := args["command"].(string)
	if command == "" {
		return ErrorResult("command is required")
	}

	for _, pattern := range t.denyPatterns {
		if pattern.MatchString(command) {
			return ErrorResult(fmt.Sprintf("command denied by safety policy: matches pattern %s", pattern.String()))
		}
	}

	sb, err := t.router.SandboxFor(ctx)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error: %v", err))
	}
	cwd := sb.Root()
	if wd, _ := args["working_dir"].(string); wd != "" {
		resolved, err := sb.ResolveDir(wd)
		if err != nil {
			return ErrorResult(fmt.Sprintf("Security error: %v", err))
		}
		cwd = resolved
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = cwd

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	var result string
	if stdout.Len() > 0 {
		result = stdout.String()
	}
	if stderr.Len() > 0 {
		if result != "" {
			result += "\n"
		}
		result += "STDERR:\n" + stderr.String()
	}

	if runErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return ErrorResult(fmt.Sprintf("command timed out after %s", t.timeout))
		}
		if result == "" {
			result = runErr.Error()
		}
		return ErrorResult(result)
	}

	if result == "" {
		result = "(command completed with no output)"
	}

	return SilentResult(result)
}
