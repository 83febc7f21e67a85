package constants

import "os"

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func GetIndexDir() string {
	return getenv("INDEX_PATH", "./out")
}

func GetMediaDir() string {
	path := os.Getenv("MEDIA_PATH")
	if path != "" {
		return path
	}

	panic("MEDIA_PATH environment variable is not set!")
}

func GetDynamoEndpoint() string {
	return os.Getenv("DYNAMO_ENDPOINT")
}

func GetDynamoRegion() string {
	return getenv("DYNAMO_REGION", "us-west-2")
}

func GetLogLevel() string {
	return getenv("LOG_LEVEL", "info")
}

func GetFFmpegBin() string {
	return getenv("FFMPEG_BIN", "ffmpeg")
}

func GetListenAddr() string {
	return getenv("LISTEN_ADDR", ":8080")
}

const DynamoTable = "melodex-analyses"

// catalog files are written here inside the index dir
const CatalogFile = "catalog.dat"

// everything is decoded at this rate before onset detection
const DecodeSampleRate = 44100

var MidiExtensions = []string{".mid", ".midi", ".smf"}

var AudioExtensions = []string{".wav", ".mp3", ".m4a", ".aac", ".flac", ".ogg", ".opus"}
