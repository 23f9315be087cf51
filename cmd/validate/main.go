// Validates a story JSON file before it is used to create sessions.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/actor"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <story.json>\n", os.Args[0])
		os.Exit(1)
	}

	filename := os.Args[1]
	validator := &StoryValidator{}

	if err := validator.validateFile(filename); err != nil {
		fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Story file is valid!")
}

type StoryValidator struct {
	errors []string
}

func (v *StoryValidator) validateFile(filename string) error {
	fmt.Printf("Validating %s...\n", filename)

	baseName := filepath.Base(filename)
	if !strings.HasSuffix(baseName, ".json") {
		return fmt.Errorf("story file must have .json extension: %s", baseName)
	}

	nameWithoutExt := strings.TrimSuffix(baseName, ".json")
	if !isValidStoryFilename(nameWithoutExt) {
		return fmt.Errorf("story filename '%s' must be lowercase snake_case (e.g., my_story.json, not my-story.json or MyStory.json)", baseName)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", filename, err)
	}

	v.errors = nil

	if !json.Valid(data) {
		return fmt.Errorf("file %s contains invalid JSON", filename)
	}

	var story actor.Story
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&story); err != nil {
		return fmt.Errorf("file %s failed strict JSON unmarshaling: %w", filename, err)
	}

	v.validateStory(&story)

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors in %s:\n%s", filename, strings.Join(v.errors, "\n"))
	}

	return nil
}

func (v *StoryValidator) validateStory(story *actor.Story) {
	v.requireField("game", story.GameSystem)
	v.requireField("world_details", story.WorldDetails)
	v.requireField("adventure_and_main_event", story.AdventureAndMainEvent)
	v.requireField("theme", story.Theme)
	v.requireField("tonality", story.Tonality)
	v.requireField("character_simple_description", story.CharacterSimpleDescription)

	if story.ExpectedPartySize < 0 || story.ExpectedPartySize > 4 {
		v.addError(fmt.Sprintf("expected_party_size %d is out of range (0-4)", story.ExpectedPartySize))
	}

	if story.ContentRating != "" && !isKnownRating(story.ContentRating) {
		v.addError(fmt.Sprintf("content_rating '%s' is not a known rating (G, PG, PG13, R)", story.ContentRating))
	}
}

func isKnownRating(rating string) bool {
	switch strings.ToUpper(strings.TrimSpace(rating)) {
	case "G", "PG", "PG13", "PG-13", "R":
		return true
	default:
		return false
	}
}

func (v *StoryValidator) requireField(fieldName, value string) {
	if strings.TrimSpace(value) == "" {
		v.addError(fmt.Sprintf("%s is required", fieldName))
	}
}

func (v *StoryValidator) addError(msg string) {
	v.errors = append(v.errors, "  - "+msg)
}

var validFilenameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$|^[a-z]$`)

func isValidStoryFilename(name string) bool {
	// Allow 'x.' prefix for experimental stories
	name = strings.TrimPrefix(name, "x.")
	return validFilenameRegex.MatchString(name)
}
