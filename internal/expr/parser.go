package expr

import (
    "github.com/shopspring/decimal"

    "quoteengine/internal/money"
)

// parser is a recursive-descent parser over an owned byte buffer. pos is the
// only mutable state; nothing is ever re-scanned.
type parser struct {
    buf []byte
    pos int
}

// expr := term (op term)*
func (p *parser) parseExpr() (ParsedExpression, error) {
    var out ParsedExpression

    t, err := p.parseTerm()
    if err != nil {
        return out, err
    }
    out.Terms = append(out.Terms, t)

    for {
        p.skipSpace()
        if p.eof() {
            return out, nil
        }
        op := p.buf[p.pos]
        if !isOperator(op) {
            return out, userErrorf("invalid token %q", p.word())
        }
        p.pos++
        p.skipSpace()
        if p.eof() {
            return out, userErrorf("expected a term after '%c'", op)
        }
        t, err := p.parseTerm()
        if err != nil {
            return out, err
        }
        out.Operators = append(out.Operators, op)
        out.Terms = append(out.Terms, t)
    }
}

// term := signed-decimal [ws+ symbol | letters]
func (p *parser) parseTerm() (Term, error) {
    p.skipSpace()
    start := p.pos
    amount, err := p.parseNumber()
    if err != nil {
        return Term{}, err
    }

    // Compact form: the suffix must be letters only so that "1e2" is never
    // read as an amount of "E2".
    if !p.eof() && isAlpha(p.buf[p.pos]) {
        sym := p.alnumRun()
        for i := 0; i < len(sym); i++ {
            if !isAlpha(sym[i]) {
                return Term{}, userErrorf("invalid token %q", string(p.buf[start:p.pos]))
            }
        }
        return p.assetTerm(amount, sym)
    }

    mark := p.pos
    p.skipSpace()
    if p.pos > mark && !p.eof() && isAlpha(p.buf[p.pos]) {
        return p.assetTerm(amount, p.alnumRun())
    }
    p.pos = mark
    return Term{Amount: amount}, nil
}

func (p *parser) assetTerm(amount decimal.Decimal, raw string) (Term, error) {
    if !p.eof() && !isSpace(p.buf[p.pos]) && !isOperator(p.buf[p.pos]) {
        return Term{}, userErrorf("invalid token %q", raw+p.word())
    }
    sym := money.NormalizeSymbol(raw)
    if err := money.ValidateCryptoSymbol(sym); err != nil {
        return Term{}, &UserError{Msg: err.Error()}
    }
    return Term{Amount: amount, Symbol: sym}, nil
}

// parseNumber reads [+-]? digits [. digits] | [+-]? . digits
func (p *parser) parseNumber() (decimal.Decimal, error) {
    start := p.pos
    if !p.eof() && (p.buf[p.pos] == '+' || p.buf[p.pos] == '-') {
        p.pos++
    }
    intDigits := p.digitRun()
    fracDigits := 0
    if !p.eof() && p.buf[p.pos] == '.' {
        p.pos++
        fracDigits = p.digitRun()
        if fracDigits == 0 {
            return decimal.Zero, userErrorf("invalid number %q", string(p.buf[start:p.pos]))
        }
    }
    if intDigits == 0 && fracDigits == 0 {
        p.pos = start
        return decimal.Zero, userErrorf("invalid token %q", p.word())
    }

    lit := string(p.buf[start:p.pos])
    d, err := decimal.NewFromString(normalizeLiteral(lit))
    if err != nil {
        return decimal.Zero, userErrorf("invalid number %q", lit)
    }
    return d, nil
}

func (p *parser) digitRun() int {
    n := 0
    for !p.eof() && isDigit(p.buf[p.pos]) {
        p.pos++
        n++
    }
    return n
}

func (p *parser) alnumRun() string {
    start := p.pos
    for !p.eof() && (isAlpha(p.buf[p.pos]) || isDigit(p.buf[p.pos])) {
        p.pos++
    }
    return string(p.buf[start:p.pos])
}

// word returns the text from pos up to the next space or operator, for
// error messages. It does not advance.
func (p *parser) word() string {
    end := p.pos
    for end < len(p.buf) && !isSpace(p.buf[end]) && (end == p.pos || !isOperator(p.buf[end])) {
        end++
    }
    return string(p.buf[p.pos:end])
}

func (p *parser) skipSpace() {
    for !p.eof() && isSpace(p.buf[p.pos]) {
        p.pos++
    }
}

func (p *parser) eof() bool { return p.pos >= len(p.buf) }

func isOperator(c byte) bool { return c == '+' || c == '-' || c == '*' || c == '/' }
func isDigit(c byte) bool    { return c >= '0' && c <= '9' }
func isAlpha(c byte) bool    { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isSpace(c byte) bool    { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

// normalizeLiteral drops a leading '+' and fills in a missing integer part.
func normalizeLiteral(lit string) string {
    neg := false
    switch lit[0] {
    case '+':
        lit = lit[1:]
    case '-':
        neg = true
        lit = lit[1:]
    }
    if lit[0] == '.' {
        lit = "0" + lit
    }
    if neg {
        return "-" + lit
    }
    return lit
}
