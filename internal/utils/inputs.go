package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// PromptYesNo asks a question on stdout and reads y/n from stdin
func PromptYesNo(question string) bool {
	return promptYesNo(os.Stdin, question)
}

func promptYesNo(in io.Reader, question string) bool {
	reader := bufio.NewReader(in)
	for {
		fmt.Printf("%s (y/n): ", question)
		response, err := reader.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(response)) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
		if err != nil {
			// EOF without an answer
			return false
		}
		fmt.Println("Please enter y or n")
	}
}

// PromptLine reads one trimmed line from stdin
func PromptLine(question string) (string, error) {
	fmt.Printf("%s: ", question)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
