package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeChunker_ChunkGoFile_ReturnsFunctionChunks(t *testing.T) {
	source := `package main

import "fmt"

func Hello() {
	fmt.Println("Hello")
}

func Goodbye() {
	fmt.Println("Goodbye")
}
`
	chunker := NewCodeChunker()
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:     "main.go",
		Content:  []byte(source),
		Language: "go",
	})

	require.NoError(t, err)
	require.Len(t, chunks, 2, "should return 2 chunks for 2 functions")

	assert.Equal(t, "Hello", chunks[0].SymbolName)
	assert.Equal(t, SymbolTypeFunction, chunks[0].SymbolType)
	assert.Contains(t, chunks[0].Content, "Hello")
	assert.Contains(t, chunks[0].Content, "main.go")

	assert.Equal(t, "Goodbye", chunks[1].SymbolName)
	assert.NotEqual(t, chunks[0].SymbolID, chunks[1].SymbolID)
}

func TestCodeChunker_ChunkGoFile_IncludesDocComments(t *testing.T) {
	source := `package main

import "fmt"

// Greet returns a greeting message for the given name.
func Greet(name string) string {
	if name == "" {
		return "Hello, stranger!"
	}
	return fmt.Sprintf("Hello, %s!", name)
}
`
	chunker := NewCodeChunker()
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:     "main.go",
		Content:  []byte(source),
		Language: "go",
	})

	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, "Greet", chunks[0].SymbolName)
	assert.Contains(t, chunks[0].Content, "Greet returns a greeting")
}

func TestCodeChunker_ChunkGoFile_ClassifiesStructAndInterface(t *testing.T) {
	source := `package main

type Animal interface {
	Speak() string
}

type Dog struct {
	Name string
}
`
	chunker := NewCodeChunker()
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:     "animal.go",
		Content:  []byte(source),
		Language: "go",
	})

	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, SymbolTypeInterface, chunks[0].SymbolType)
	assert.Equal(t, SymbolTypeStruct, chunks[1].SymbolType)
}

func TestCodeChunker_ChunkTypeScript_ExtractsMethods(t *testing.T) {
	source := `import { Logger } from './logger';

export class UserService {
	private logger: Logger;

	getUser(id: string): User | null {
		return null;
	}
}
`
	chunker := NewCodeChunker()
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:     "user-service.ts",
		Content:  []byte(source),
		Language: "typescript",
	})

	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 1)

	found := false
	for _, c := range chunks {
		if c.SymbolName == "UserService" {
			found = true
			assert.Equal(t, SymbolTypeClass, c.SymbolType)
		}
	}
	assert.True(t, found, "expected a chunk for the UserService class")
}

func TestCodeChunker_SplitsOversizedSymbol(t *testing.T) {
	var body strings.Builder
	body.WriteString("package main\n\nfunc Big() {\n")
	for i := 0; i < 400; i++ {
		body.WriteString("\tdoSomething()\n")
	}
	body.WriteString("}\n")

	chunker := NewCodeChunker()
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:     "big.go",
		Content:  []byte(body.String()),
		Language: "go",
	})

	require.NoError(t, err)
	require.Greater(t, len(chunks), 1, "an oversized symbol should be split into multiple parts")
	for _, c := range chunks {
		assert.Equal(t, "Big", c.SymbolName)
		assert.Greater(t, c.SymbolPartCount, 1)
		assert.LessOrEqual(t, c.TokenCount, CodeMaxTokens)
	}
}

func TestCodeChunker_UnsupportedLanguage_FallsBackToLineChunking(t *testing.T) {
	source := strings.Repeat("some rust code here\n", 5)

	chunker := NewCodeChunker()
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:     "main.rs",
		Content:  []byte(source),
		Language: "rust",
	})

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, ChunkTypeCode, chunks[0].ChunkType)
	assert.Empty(t, chunks[0].SymbolName)
}

func TestCodeChunker_EmptyFile_ReturnsNoChunks(t *testing.T) {
	chunker := NewCodeChunker()
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:     "empty.go",
		Content:  []byte(""),
		Language: "go",
	})

	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSymbolID_StableAcrossCalls(t *testing.T) {
	sym := &Symbol{Name: "Foo", StartByte: 10, EndByte: 50}
	assert.Equal(t, symbolID(sym), symbolID(sym))

	other := &Symbol{Name: "Foo", StartByte: 10, EndByte: 51}
	assert.NotEqual(t, symbolID(sym), symbolID(other))
}
