package lexer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextTokenBasicPunctuation(t *testing.T) {
	src := "(){}[];,.-+/*"
	want := []Kind{LeftParen, RightParen, LeftBrace, RightBrace, LeftBracket,
		RightBracket, Semicolon, Comma, Dot, Minus, Plus, Slash, Star, EOF}

	l := New(src)
	for i, k := range want {
		tok := l.NextToken()
		require.Equalf(t, k, tok.Kind, "token %d", i)
	}
}

func TestNextTokenTwoCharOperators(t *testing.T) {
	src := "! != = == > >= < <="
	want := []Kind{Bang, BangEqual, Equal, EqualEqual, Greater, GreaterEqual, Less, LessEqual, EOF}

	l := New(src)
	for _, k := range want {
		tok := l.NextToken()
		require.Equal(t, k, tok.Kind)
	}
}

func TestNextTokenKeywordsAndIdentifiers(t *testing.T) {
	src := "and class else false for fun if nil or print return super this true var while foo bar_2"
	l := New(src)
	want := []Kind{And, Class, Else, False, For, Fun, If, Nil, Or, Print,
		Return, Super, This, True, Var, While, Identifier, Identifier, EOF}
	for _, k := range want {
		tok := l.NextToken()
		require.Equal(t, k, tok.Kind)
	}
}

func TestNextTokenNumbers(t *testing.T) {
	l := New("123 45.67 0")
	tok := l.NextToken()
	require.Equal(t, Number, tok.Kind)
	require.Equal(t, "123", tok.Lexeme)

	tok = l.NextToken()
	require.Equal(t, Number, tok.Kind)
	require.Equal(t, "45.67", tok.Lexeme)

	tok = l.NextToken()
	require.Equal(t, Number, tok.Kind)
	require.Equal(t, "0", tok.Lexeme)
}

func TestNextTokenDotIsNotAlwaysDecimal(t *testing.T) {
	// "1." should lex as NUMBER("1") then DOT, since '.' is only part of a
	// number when followed by a digit (spec §4.F).
	l := New("1.")
	tok := l.NextToken()
	require.Equal(t, Number, tok.Kind)
	require.Equal(t, "1", tok.Lexeme)
	tok = l.NextToken()
	require.Equal(t, Dot, tok.Kind)
}

func TestNextTokenString(t *testing.T) {
	l := New(`"hello world"`)
	tok := l.NextToken()
	require.Equal(t, String, tok.Kind)
	require.Equal(t, `"hello world"`, tok.Lexeme)
}

func TestNextTokenMultilineString(t *testing.T) {
	l := New("\"line1\nline2\" nil")
	tok := l.NextToken()
	require.Equal(t, String, tok.Kind)
	tok = l.NextToken()
	require.Equal(t, Nil, tok.Kind)
	require.Equal(t, 2, tok.Line)
}

func TestNextTokenUnterminatedString(t *testing.T) {
	l := New(`"oops`)
	tok := l.NextToken()
	require.Equal(t, Error, tok.Kind)
	require.Equal(t, "Unterminated string.", tok.Lexeme)
}

func TestNextTokenUnexpectedCharacter(t *testing.T) {
	l := New("@")
	tok := l.NextToken()
	require.Equal(t, Error, tok.Kind)
	require.Equal(t, "Unexpected character.", tok.Lexeme)
}

func TestNextTokenSkipsLineComments(t *testing.T) {
	l := New("1 // a comment\n2")
	tok := l.NextToken()
	require.Equal(t, Number, tok.Kind)
	require.Equal(t, "1", tok.Lexeme)
	tok = l.NextToken()
	require.Equal(t, Number, tok.Kind)
	require.Equal(t, "2", tok.Lexeme)
	require.Equal(t, 2, tok.Line)
}

func TestNextTokenLineTracking(t *testing.T) {
	l := New("1\n2\n3")
	for i := 1; i <= 3; i++ {
		tok := l.NextToken()
		require.Equal(t, i, tok.Line)
	}
}
