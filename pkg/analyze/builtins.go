package analyze

// Keywords is the Python 3 keyword list.
var Keywords = []string{
	"False", "None", "True", "and", "as", "assert", "async", "await",
	"break", "class", "continue", "def", "del", "elif", "else", "except",
	"finally", "for", "from", "global", "if", "import", "in", "is",
	"lambda", "nonlocal", "not", "or", "pass", "raise", "return", "try",
	"while", "with", "yield",
}

// Builtins is a hard-coded list of builtin names. It deliberately includes
// legacy and interpreter-specific names (apply, basestring, dreload and
// friends) so that code written for older interpreters still analyzes
// correctly.
var Builtins = []string{
	"ArithmeticError",
	"AssertionError",
	"AttributeError",
	"BaseException",
	"BufferError",
	"BytesWarning",
	"DeprecationWarning",
	"EOFError",
	"Ellipsis",
	"EnvironmentError",
	"Exception",
	"False",
	"FloatingPointError",
	"FutureWarning",
	"GeneratorExit",
	"IOError",
	"ImportError",
	"ImportWarning",
	"IndentationError",
	"IndexError",
	"KeyError",
	"KeyboardInterrupt",
	"LookupError",
	"MemoryError",
	"NameError",
	"None",
	"NotImplemented",
	"NotImplementedError",
	"OSError",
	"OverflowError",
	"PendingDeprecationWarning",
	"ReferenceError",
	"RuntimeError",
	"RuntimeWarning",
	"StandardError",
	"StopIteration",
	"SyntaxError",
	"SyntaxWarning",
	"SystemError",
	"SystemExit",
	"TabError",
	"True",
	"TypeError",
	"UnboundLocalError",
	"UnicodeDecodeError",
	"UnicodeEncodeError",
	"UnicodeError",
	"UnicodeTranslateError",
	"UnicodeWarning",
	"UserWarning",
	"ValueError",
	"Warning",
	"ZeroDivisionError",
	"__IPYTHON__",
	"__IPYTHON__active",
	"__debug__",
	"__doc__",
	"__import__",
	"__name__",
	"__package__",
	"abs",
	"all",
	"any",
	"apply",
	"basestring",
	"bin",
	"bool",
	"buffer",
	"bytearray",
	"bytes",
	"callable",
	"chr",
	"classmethod",
	"cmp",
	"coerce",
	"compile",
	"complex",
	"copyright",
	"credits",
	"delattr",
	"dict",
	"dir",
	"divmod",
	"dreload",
	"enumerate",
	"eval",
	"execfile",
	"exit",
	"file",
	"filter",
	"float",
	"format",
	"frozenset",
	"getattr",
	"globals",
	"hasattr",
	"hash",
	"help",
	"hex",
	"id",
	"input",
	"int",
	"intern",
	"ip_set_hook",
	"ipalias",
	"ipmagic",
	"ipsystem",
	"isinstance",
	"issubclass",
	"iter",
	"jobs",
	"len",
	"license",
	"list",
	"locals",
	"long",
	"map",
	"max",
	"min",
	"next",
	"object",
	"oct",
	"open",
	"ord",
	"pow",
	"print",
	"property",
	"quit",
	"range",
	"raw_input",
	"reduce",
	"reload",
	"repr",
	"reversed",
	"round",
	"set",
	"setattr",
	"slice",
	"sorted",
	"staticmethod",
	"str",
	"sum",
	"super",
	"tuple",
	"type",
	"unichr",
	"unicode",
	"vars",
	"xrange",
	"zip",
}

var (
	builtinSet  = make(map[string]bool, len(Builtins))
	reservedSet = make(map[string]bool, len(Keywords)+len(Builtins))
)

func init() {
	for _, b := range Builtins {
		builtinSet[b] = true
	}
	for _, k := range Keywords {
		reservedSet[k] = true
	}
	for _, b := range Builtins {
		reservedSet[b] = true
	}
}

// IsBuiltin reports whether name is in the builtin list.
func IsBuiltin(name string) bool {
	return builtinSet[name]
}

// IsReserved reports whether name is a keyword or a builtin. Reserved names
// are never picked as replacement identifiers and never get obfuscated.
func IsReserved(name string) bool {
	return reservedSet[name]
}
