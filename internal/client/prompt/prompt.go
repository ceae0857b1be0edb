// Package prompt reads login forms and shell commands from a terminal.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/atinyakov/teaadmin/internal/models"
)

// Prompter reads answers line by line from in and writes labels to out.
// The shell and the login forms share one Prompter so no input is lost to
// a second buffer.
type Prompter struct {
	scanner *bufio.Scanner
	out     io.Writer
}

// New returns a Prompter over in and out.
func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{scanner: bufio.NewScanner(in), out: out}
}

// Line prints label and returns the next trimmed input line. ok is false
// once the input is exhausted.
func (p *Prompter) Line(label string) (line string, ok bool) {
	fmt.Fprint(p.out, label)
	if !p.scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(p.scanner.Text()), true
}

// Login asks for the password login form. When captcha is not nil its id is
// attached and its code shown, as the development backend returns it in
// clear.
func (p *Prompter) Login(captcha *models.Captcha) (models.LoginRequest, error) {
	var req models.LoginRequest
	var ok bool

	if req.Username, ok = p.Line("Username: "); !ok {
		return req, io.ErrUnexpectedEOF
	}
	if req.Username == "" {
		return req, fmt.Errorf("username is required")
	}
	if req.Password, ok = p.Line("Password: "); !ok {
		return req, io.ErrUnexpectedEOF
	}
	if req.Password == "" {
		return req, fmt.Errorf("password is required")
	}

	if captcha != nil {
		req.CaptchaID = captcha.ID
		if captcha.Code != "" {
			fmt.Fprintf(p.out, "Captcha code is %s\n", captcha.Code)
		}
		if req.CaptchaCode, ok = p.Line("Captcha: "); !ok {
			return req, io.ErrUnexpectedEOF
		}
	}
	return req, nil
}

// DevLogin asks for the openid used by the development login.
func (p *Prompter) DevLogin() (string, error) {
	openid, ok := p.Line("OpenID: ")
	if !ok {
		return "", io.ErrUnexpectedEOF
	}
	if openid == "" {
		return "", fmt.Errorf("openid is required")
	}
	return openid, nil
}
