package plagiarism

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
)

// Normalized token values. Identifiers, function names and string literals
// are collapsed so renaming does not hide copied code.
const (
	tokenName     = "V"
	tokenFunction = "F"
	tokenString   = "S"
)

// languageLexers maps submission language tags to chroma lexer aliases.
var languageLexers = map[string]string{
	"python":     "python",
	"python3":    "python",
	"pythondata": "python",
	"golang":     "go",
	"go":         "go",
	"cpp":        "cpp",
	"c":          "c",
	"java":       "java",
	"javascript": "javascript",
	"typescript": "typescript",
	"csharp":     "csharp",
	"kotlin":     "kotlin",
	"rust":       "rust",
	"swift":      "swift",
	"ruby":       "ruby",
	"scala":      "scala",
	"php":        "php",
	"dart":       "dart",
	"racket":     "racket",
	"erlang":     "erlang",
	"elixir":     "elixir",
}

func lexerFor(language string) chroma.Lexer {
	alias, ok := languageLexers[strings.ToLower(language)]
	if !ok {
		return nil
	}
	lexer := lexers.Get(alias)
	if lexer == nil {
		return nil
	}
	return chroma.Coalesce(lexer)
}

// Tokenize turns source code into a normalized token stream. Comments and
// whitespace are dropped. Builtins keep their text, every other name becomes
// V or F. Languages without a lexer use a generic scanner.
func Tokenize(code, language string) []string {
	lexer := lexerFor(language)
	if lexer == nil {
		return genericTokens(code)
	}

	it, err := lexer.Tokenise(nil, code)
	if err != nil {
		return genericTokens(code)
	}

	var tokens []string
	for _, tok := range it.Tokens() {
		switch {
		case tok.Type.InCategory(chroma.Comment):
			continue
		case tok.Type == chroma.TextWhitespace || strings.TrimSpace(tok.Value) == "":
			continue
		case tok.Type == chroma.NameFunction || tok.Type == chroma.NameFunctionMagic:
			tokens = append(tokens, tokenFunction)
		case tok.Type == chroma.NameBuiltin || tok.Type == chroma.NameBuiltinPseudo:
			tokens = append(tokens, strings.TrimSpace(tok.Value))
		case tok.Type.InCategory(chroma.Name):
			// Classes, labels, attributes, properties and variables all
			// carry user chosen names.
			tokens = append(tokens, tokenName)
		case tok.Type.InSubCategory(chroma.LiteralString):
			// Lexers split strings into delimiter and body tokens.
			if len(tokens) > 0 && tokens[len(tokens)-1] == tokenString {
				continue
			}
			tokens = append(tokens, tokenString)
		default:
			tokens = append(tokens, strings.TrimSpace(tok.Value))
		}
	}
	return tokens
}

var genericKeywords = map[string]bool{
	"if": true, "else": true, "elif": true, "for": true, "while": true, "do": true,
	"return": true, "break": true, "continue": true, "switch": true, "case": true,
	"default": true, "def": true, "func": true, "function": true, "fn": true,
	"class": true, "struct": true, "new": true, "in": true, "and": true, "or": true,
	"not": true, "true": true, "false": true, "null": true, "nil": true, "None": true,
	"True": true, "False": true, "int": true, "long": true, "var": true, "let": true,
	"const": true, "auto": true, "void": true, "public": true, "private": true,
	"static": true, "import": true,
}

var genericOperators = []string{
	"<<=", ">>=", "**=", "===", "!==", "...",
	"==", "!=", "<=", ">=", "&&", "||", "++", "--", "->", "=>", "::", "<<", ">>",
	"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "**", ":=",
}

// genericTokens scans identifiers, numbers, string literals and operators,
// skipping //, # and /* */ comments.
func genericTokens(code string) []string {
	var tokens []string
	i := 0
	for i < len(code) {
		r, size := utf8.DecodeRuneInString(code[i:])
		rest := code[i:]

		switch {
		case unicode.IsSpace(r):
			i += size

		case strings.HasPrefix(rest, "//") || r == '#':
			end := strings.IndexByte(rest, '\n')
			if end < 0 {
				return tokens
			}
			i += end + 1

		case strings.HasPrefix(rest, "/*"):
			end := strings.Index(rest[2:], "*/")
			if end < 0 {
				return tokens
			}
			i += end + 4

		case r == '_' || unicode.IsLetter(r):
			j := i + size
			for j < len(code) {
				next, n := utf8.DecodeRuneInString(code[j:])
				if next != '_' && !unicode.IsLetter(next) && !unicode.IsDigit(next) {
					break
				}
				j += n
			}
			word := code[i:j]
			switch {
			case genericKeywords[word]:
				tokens = append(tokens, word)
			case strings.HasPrefix(strings.TrimLeft(code[j:], " \t"), "("):
				tokens = append(tokens, tokenFunction)
			default:
				tokens = append(tokens, tokenName)
			}
			i = j

		case unicode.IsDigit(r):
			j := i + size
			for j < len(code) {
				next, n := utf8.DecodeRuneInString(code[j:])
				if next != '.' && next != '_' && !unicode.IsLetter(next) && !unicode.IsDigit(next) {
					break
				}
				j += n
			}
			tokens = append(tokens, code[i:j])
			i = j

		case r == '"' || r == '\'' || r == '`':
			i += size + stringLiteralLen(code[i+size:], byte(r))
			tokens = append(tokens, tokenString)

		default:
			op := rest[:size]
			for _, candidate := range genericOperators {
				if strings.HasPrefix(rest, candidate) {
					op = candidate
					break
				}
			}
			tokens = append(tokens, op)
			i += len(op)
		}
	}
	return tokens
}

// stringLiteralLen returns the byte length of the literal body plus its
// closing quote. Unterminated literals run to the end of input.
func stringLiteralLen(s string, quote byte) int {
	for j := 0; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case quote:
			return j + 1
		}
	}
	return len(s)
}
