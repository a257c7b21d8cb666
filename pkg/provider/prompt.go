package provider

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/AidanTHWong/wallet/pkg/shared"

	"golang.org/x/term"
)

// TerminalPassword reads a passphrase from the controlling terminal without echo.
func TerminalPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pass), nil
}

// PromptApprover asks on out and reads a y/N answer from in for every transaction.
func PromptApprover(in io.Reader, out io.Writer) Approver {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, req ApprovalRequest) (bool, error) {
		fmt.Fprintln(out, DescribeApproval(req))
		fmt.Fprint(out, "Approve? [y/N]: ")
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return false, err
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	}
}

func DescribeApproval(req ApprovalRequest) string {
	chain := req.ChainID.String()
	if c, ok := shared.ChainFromID(req.ChainID); ok {
		chain = c.String()
	}
	to := "contract creation"
	if req.To != nil {
		to = req.To.Hex()
	}
	return fmt.Sprintf("[%s] %s on %s: send %s ETH to %s (gas %d, %d bytes data)",
		req.Wallet, req.From.Hex(), chain, shared.FormatEther(req.Value), to, req.Gas, len(req.Data))
}
