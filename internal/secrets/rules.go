package secrets

// DefaultRules returns the built-in detection rules. Rules without keywords
// match on self-identifying prefixes; the rest only run when a keyword
// appears in the content.
func DefaultRules() []Rule {
	return []Rule{
		high("aws-access-key-id", "AWS Access Key ID", `(?i)(A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16}`, "aws", "access", "key"),
		high("aws-secret-access-key", "AWS Secret Access Key", `(?i)(?:aws_secret_access_key|aws_secret_key|secret_access_key)\s*[:=]\s*['"]?([A-Za-z0-9/+=]{40})['"]?`, "aws", "secret"),
		high("generic-api-key", "Generic API Key", `(?i)(?:api[_-]?key|apikey)\s*[:=]\s*['"]?([A-Za-z0-9_\-]{16,64})['"]?`, "api", "key"),
		high("generic-secret", "Generic Secret", `(?i)(?:secret|password|passwd|pwd)\s*[:=]\s*['"]?([^\s'"]{8,})['"]?`, "secret", "password"),
		high("private-key", "Private Key", `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?:[- ]BLOCK)?-----`),
		high("github-token", "GitHub Personal Access Token", `ghp_[A-Za-z0-9]{36}`),
		high("github-oauth", "GitHub OAuth Access Token", `gho_[A-Za-z0-9]{36}`),
		high("github-app", "GitHub App Token", `(?:ghu|ghs)_[A-Za-z0-9]{36}`),
		high("github-fine-grained", "GitHub Fine-grained Personal Access Token", `github_pat_[A-Za-z0-9_]{22,}`),
		high("gitlab-token", "GitLab Personal Access Token", `glpat-[A-Za-z0-9\-]{20,}`),
		high("slack-token", "Slack Token", `xox[baprs]-[A-Za-z0-9\-]{10,}`),
		high("stripe-key", "Stripe API Key", `(?:sk|pk)_(?:live|test)_[A-Za-z0-9]{24,}`),
		high("database-url", "Database Connection URL with credentials", `(?i)(?:postgres|mysql|mongodb|redis|amqp)://[^:]+:[^@]+@[^\s]+`, "database", "db", "connection"),
		medium("jwt", "JSON Web Token", `eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*`),
		high("google-api-key", "Google API Key", `AIza[A-Za-z0-9_\-]{35}`, "google"),
		high("google-oauth", "Google OAuth Client Secret", `(?i)client_secret['":\s]+[A-Za-z0-9_\-]{24}`, "google", "oauth"),
		high("azure-storage-key", "Azure Storage Account Key", `(?i)(?:account_?key|storage_?key)\s*[:=]\s*['"]?([A-Za-z0-9+/]{86}==)['"]?`, "azure", "storage"),
		high("anthropic-api-key", "Anthropic API Key", `sk-ant-[A-Za-z0-9_\-]{90,}`, "anthropic", "claude"),
		high("openai-api-key", "OpenAI API Key", `sk-[A-Za-z0-9]{48,}`, "openai"),
		high("sendgrid-api-key", "SendGrid API Key", `SG\.[A-Za-z0-9_\-]{22,}\.[A-Za-z0-9_\-]{43,}`),
		high("twilio-api-key", "Twilio API Key", `SK[A-Za-z0-9]{32}`, "twilio"),
		high("npm-token", "npm Access Token", `npm_[A-Za-z0-9]{36}`),
		high("heroku-api-key", "Heroku API Key", `(?i)heroku[_-]?api[_-]?key\s*[:=]\s*[A-Fa-f0-9]{8}-[A-Fa-f0-9]{4}-[A-Fa-f0-9]{4}-[A-Fa-f0-9]{4}-[A-Fa-f0-9]{12}`, "heroku"),
		medium("bearer-token", "Bearer Token in Authorization Header", `(?i)(?:authorization|bearer)\s*[:=]\s*['"]?bearer\s+([A-Za-z0-9_\-\.]{20,})['"]?`, "authorization", "bearer"),
		high("env-credential", "Environment Variable with Credential", `(?i)(?:^|[^A-Za-z0-9_])(?:DB_PASSWORD|DATABASE_PASSWORD|MYSQL_PASSWORD|POSTGRES_PASSWORD|REDIS_PASSWORD|MONGO_PASSWORD|API_SECRET|APP_SECRET|SECRET_KEY|ENCRYPTION_KEY|PRIVATE_KEY|AUTH_TOKEN|ACCESS_TOKEN|REFRESH_TOKEN)\s*[:=]\s*['"]?([^\s'"]{8,})['"]?`),
	}
}

func high(id, description, pattern string, keywords ...string) Rule {
	return Rule{ID: id, Description: description, Pattern: pattern, Keywords: keywords, Severity: "high"}
}

func medium(id, description, pattern string, keywords ...string) Rule {
	r := high(id, description, pattern, keywords...)
	r.Severity = "medium"
	return r
}
