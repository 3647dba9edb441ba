package config

import (
	"context"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ParameterStoreValue reads a decrypted SecureString from AWS SSM Parameter
// Store. It returns "" when the parameter cannot be read.
func ParameterStoreValue(name string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return ""
	}

	client := ssm.NewFromConfig(cfg)

	decrypt := true
	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &decrypt,
	})
	if err != nil || result.Parameter == nil || result.Parameter.Value == nil {
		return ""
	}

	return *result.Parameter.Value
}

// ResolveJWTSecret returns the signing secret. In prod it is read from
// Parameter Store when the config does not carry one.
func (a AuthConfig) ResolveJWTSecret(env string) string {
	if a.JWTSecret != "" || env != "prod" || a.JWTSecretParam == "" {
		return a.JWTSecret
	}
	return ParameterStoreValue(a.JWTSecretParam)
}
