package appconfig

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/ledgerops/warehouse/logging"
	"github.com/spf13/viper"
)

const (
	jsonType = "json"
	yamlType = "yaml"

	httpConfigTimeout = 30 * time.Second
)

var templateVariablePattern = regexp.MustCompile(`\$\{env\.[\w_]+(?:\|[^\}]*)?\}`)

//Read reads config from configSourceStr that might be (HTTP URL or path to YAML/JSON file or plain JSON string)
//replaces all ${env.VAR|default} placeholders with OS variables
//configSourceStr might be overridden by "config_location" ENV variable
func Read(configSourceStr string, containerizedRun bool, configNotFoundErrMsg string) error {
	viper.AutomaticEnv()

	//support OS env variables as lower case and dot divided variables e.g. SERVER_PORT as server.port
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	//overridden configuration from ENV
	if overriddenConfigLocation := viper.GetString("config_location"); overriddenConfigLocation != "" {
		configSourceStr = overriddenConfigLocation
	}

	var content []byte
	contentType := jsonType
	var err error
	switch {
	case strings.HasPrefix(configSourceStr, "http://") || strings.HasPrefix(configSourceStr, "https://"):
		content, err = loadFromHTTP(configSourceStr)
		if strings.HasSuffix(configSourceStr, ".yaml") || strings.HasSuffix(configSourceStr, ".yml") {
			contentType = yamlType
		}
	case strings.HasPrefix(configSourceStr, "{") && strings.HasSuffix(configSourceStr, "}"):
		content = []byte(configSourceStr)
	case configSourceStr != "":
		content, err = os.ReadFile(configSourceStr)
		if ext := strings.ToLower(filepath.Ext(configSourceStr)); ext == ".yaml" || ext == ".yml" {
			contentType = yamlType
		}
	default:
		//run without config
		logging.ConfigWarn = configNotFoundErrMsg
	}

	if err != nil {
		return handleConfigErr(fmt.Errorf("Error loading config from %s: %v", configSourceStr, err), containerizedRun, configNotFoundErrMsg)
	}

	if content != nil {
		viper.SetConfigType(contentType)
		if err := viper.ReadConfig(bytes.NewBuffer(content)); err != nil {
			return handleConfigErr(fmt.Errorf("Error reading/parsing config from %s: %v", configSourceStr, err), containerizedRun, configNotFoundErrMsg)
		}
	}

	//resolve ${env.VAR} placeholders from config values
	envPlaceholderValues := map[string]interface{}{}
	for _, k := range viper.AllKeys() {
		resolved, changed, err := resolvePlaceholders(viper.Get(k))
		if err != nil {
			return fmt.Errorf("Error resolving %s config value: %v", k, err)
		}
		if changed {
			setPath(envPlaceholderValues, strings.Split(k, "."), resolved)
		}
	}

	//merge back into viper
	if len(envPlaceholderValues) > 0 {
		if err := viper.MergeConfigMap(envPlaceholderValues); err != nil {
			return fmt.Errorf("Error merging env values into viper config: %v", err)
		}
	}

	return nil
}

func loadFromHTTP(url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), httpConfigTimeout)
	defer cancel()

	buffer := &bytes.Buffer{}
	if err := requests.URL(url).ToBytesBuffer(buffer).Fetch(ctx); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

//resolvePlaceholders replaces placeholders in strings and nested arrays/maps. Returns true if something was replaced
func resolvePlaceholders(value interface{}) (interface{}, bool, error) {
	switch typed := value.(type) {
	case string:
		if !templateVariablePattern.MatchString(typed) {
			return value, false, nil
		}
		var resolveErr error
		result := templateVariablePattern.ReplaceAllStringFunc(typed, func(expression string) string {
			resolved, err := resolveExpression(expression)
			if err != nil && resolveErr == nil {
				resolveErr = err
			}
			return resolved
		})
		return result, true, resolveErr
	case []interface{}:
		result := make([]interface{}, len(typed))
		changed := false
		for i, v := range typed {
			resolved, c, err := resolvePlaceholders(v)
			if err != nil {
				return nil, false, err
			}
			result[i] = resolved
			changed = changed || c
		}
		return result, changed, nil
	case map[string]interface{}:
		result := make(map[string]interface{}, len(typed))
		changed := false
		for k, v := range typed {
			resolved, c, err := resolvePlaceholders(v)
			if err != nil {
				return nil, false, err
			}
			result[k] = resolved
			changed = changed || c
		}
		return result, changed, nil
	default:
		return value, false, nil
	}
}

//resolveExpression resolves ${env.VAR1|env.VAR2|default_value}: the first set variable or the constant
func resolveExpression(value string) (string, error) {
	envExpression := strings.TrimSuffix(strings.TrimPrefix(value, "${"), "}")

	var varsNotFound []string
	for _, expressionValue := range strings.Split(envExpression, "|") {
		if strings.HasPrefix(expressionValue, "env.") {
			envVarName := strings.TrimPrefix(expressionValue, "env.")
			if envVarValue := os.Getenv(envVarName); envVarValue != "" {
				return envVarValue, nil
			}

			varsNotFound = append(varsNotFound, envVarName)
		} else {
			//constant
			return expressionValue, nil
		}
	}

	if len(varsNotFound) == 1 {
		return "", fmt.Errorf("mandatory env variable was not found: %s", varsNotFound[0])
	}
	return "", fmt.Errorf("none of env variables [%s] is set", strings.Join(varsNotFound, " or "))
}

func setPath(object map[string]interface{}, path []string, value interface{}) {
	for _, key := range path[:len(path)-1] {
		next, ok := object[key].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			object[key] = next
		}
		object = next
	}
	object[path[len(path)-1]] = value
}

//handleConfigErr returns err only if application can't start without config
//otherwise log error and return nil
func handleConfigErr(err error, containerizedRun bool, configNotFoundErrMsg string) error {
	//failfast for running service from source (not containerised) and with wrong config
	if !containerizedRun {
		return err
	}

	logging.ConfigErr = err.Error()
	logging.ConfigWarn = configNotFoundErrMsg
	return nil
}
