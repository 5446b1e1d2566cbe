package api

const engineVersion = "1.0.0"

func Version() string { return engineVersion }
