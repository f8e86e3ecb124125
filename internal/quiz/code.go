package quiz

import gonanoid "github.com/matoous/go-nanoid/v2"

// CodeLength is the size of a published test's access code. Over the 64
// symbol URL-safe alphabet this gives 2^48 codes.
const CodeLength = 8

// CodeGenerator produces candidate access codes. Uniqueness is checked by
// the caller and finally enforced by the store.
type CodeGenerator interface {
	Generate() (string, error)
}

type CodeGeneratorFunc func() (string, error)

func (f CodeGeneratorFunc) Generate() (string, error) { return f() }

// NanoidCodes draws codes from the default nanoid alphabet (A-Za-z0-9_-).
var NanoidCodes CodeGenerator = CodeGeneratorFunc(func() (string, error) {
	return gonanoid.New(CodeLength)
})
